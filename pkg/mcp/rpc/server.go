// Package rpc is the stdio request dispatcher. It reads newline-delimited
// JSON-RPC 2.0 requests, routes them by method name to prompt, tool and
// resource providers, and writes one JSON response per line. Requests are
// handled strictly one at a time.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/telemetry"
)

const jsonRPCVersion = "2.0"

// ErrNoResponse makes the dispatcher write nothing for a request.
var ErrNoResponse = errors.New("request produces no response")

// HandlerFunc handles one method. params is the raw "params" member.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// PromptProvider backs prompts/list and prompts/get.
type PromptProvider interface {
	ListPrompts(ctx context.Context) []mcp.Prompt
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// ToolProvider backs tools/list and tools/call.
type ToolProvider interface {
	ListTools(ctx context.Context) []mcp.Tool
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ResourceProvider backs resources/list and resources/read.
type ResourceProvider interface {
	ListResources(ctx context.Context) []mcp.Resource
	ReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)
}

// Server dispatches requests to registered handlers.
type Server struct {
	info         mcp.Implementation
	instructions string
	handlers     map[string]HandlerFunc
	caps         capabilities
}

// Option configures a Server.
type Option func(*Server)

// WithInstructions sets the instructions returned by initialize.
func WithInstructions(text string) Option {
	return func(s *Server) {
		s.instructions = text
	}
}

// WithPrompts registers prompts/list and prompts/get.
func WithPrompts(p PromptProvider) Option {
	return func(s *Server) {
		s.caps.Prompts = &listChanged{}
		s.handle(string(mcp.MethodPromptsList), func(ctx context.Context, _ json.RawMessage) (any, error) {
			return mcp.ListPromptsResult{Prompts: p.ListPrompts(ctx)}, nil
		})
		s.handle(string(mcp.MethodPromptsGet), func(ctx context.Context, params json.RawMessage) (any, error) {
			var req mcp.GetPromptRequest
			if err := decodeParams(params, &req.Params); err != nil {
				return nil, err
			}
			result, err := p.GetPrompt(ctx, req)
			if err != nil {
				return nil, err
			}
			return result, nil
		})
	}
}

// WithTools registers tools/list and tools/call.
func WithTools(p ToolProvider) Option {
	return func(s *Server) {
		s.caps.Tools = &listChanged{}
		s.handle(string(mcp.MethodToolsList), func(ctx context.Context, _ json.RawMessage) (any, error) {
			return mcp.ListToolsResult{Tools: p.ListTools(ctx)}, nil
		})
		s.handle(string(mcp.MethodToolsCall), func(ctx context.Context, params json.RawMessage) (any, error) {
			var req mcp.CallToolRequest
			if err := decodeParams(params, &req.Params); err != nil {
				return nil, err
			}
			result, err := p.CallTool(ctx, req)
			if err != nil {
				return nil, err
			}
			return result, nil
		})
	}
}

// WithResources registers resources/list and resources/read.
func WithResources(p ResourceProvider) Option {
	return func(s *Server) {
		s.caps.Resources = &resourcesCapability{}
		s.handle(string(mcp.MethodResourcesList), func(ctx context.Context, _ json.RawMessage) (any, error) {
			return mcp.ListResourcesResult{Resources: p.ListResources(ctx)}, nil
		})
		s.handle(string(mcp.MethodResourcesRead), func(ctx context.Context, params json.RawMessage) (any, error) {
			var req mcp.ReadResourceRequest
			if err := decodeParams(params, &req.Params); err != nil {
				return nil, err
			}
			contents, err := p.ReadResource(ctx, req)
			if err != nil {
				return nil, err
			}
			return mcp.ReadResourceResult{Contents: contents}, nil
		})
	}
}

// NewServer creates a dispatcher advertising name and version.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		info:     mcp.Implementation{Name: name, Version: version},
		handlers: make(map[string]HandlerFunc),
	}
	s.handle(string(mcp.MethodInitialize), s.handleInitialize)
	s.handle(string(mcp.MethodPing), func(context.Context, json.RawMessage) (any, error) {
		return struct{}{}, nil
	})
	s.handle("notifications/initialized", func(ctx context.Context, _ json.RawMessage) (any, error) {
		logger.G(ctx).Debug("client initialized")
		return nil, ErrNoResponse
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// handle registers or replaces the handler for method.
func (s *Server) handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// Serve runs the read, decode, dispatch, encode, write loop until r reaches
// end of input, a read or write fails, or ctx is cancelled between requests.
// Malformed lines and failing handlers never stop the loop.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	out := bufio.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			if resp := s.handleLine(ctx, line); resp != nil {
				if err := writeResponse(out, resp); err != nil {
					return err
				}
			}
		}

		if readErr == io.EOF {
			logger.G(ctx).Debug("input closed, dispatcher stopping")
			return nil
		}
		if readErr != nil {
			return errors.Wrap(readErr, "failed to read request")
		}
	}
}

func writeResponse(w *bufio.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(&Response{
			JSONRPC: jsonRPCVersion,
			ID:      resp.ID,
			Error:   internalError(errors.Wrap(err, "failed to encode result")),
		})
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	return errors.Wrap(w.Flush(), "failed to flush response")
}

func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.G(ctx).WithError(err).WithField("line", truncate(line, 200)).Warn("discarding malformed request")
		return nil
	}
	if req.Method == "" {
		logger.G(ctx).WithField("line", truncate(line, 200)).Warn("discarding request without method")
		if req.IsNotification() {
			return nil
		}
		return errorResponse(&req, NewError(mcp.INVALID_REQUEST, "missing method"))
	}
	return s.dispatch(ctx, &req)
}

func (s *Server) dispatch(ctx context.Context, req *Request) (resp *Response) {
	ctx = logger.WithField(ctx, "method", req.Method)
	log := logger.G(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("handler panicked")
			resp = nil
			if !req.IsNotification() {
				resp = errorResponse(req, internalError(fmt.Errorf("internal error handling %s", req.Method)))
			}
		}
	}()

	handler, ok := s.handlers[req.Method]
	if !ok {
		if req.IsNotification() {
			log.Debug("ignoring unknown notification")
			return nil
		}
		log.Warn("method not found")
		return errorResponse(req, methodNotFound(req.Method))
	}

	var result any
	err := telemetry.WithSpan(ctx, "rpc.dispatch", func(ctx context.Context) error {
		var err error
		result, err = handler(ctx, req.Params)
		if errors.Is(err, ErrNoResponse) {
			result, err = nil, nil
		}
		return err
	}, attribute.String("rpc.method", req.Method))

	switch {
	case req.IsNotification():
		if err != nil {
			log.WithError(err).Warn("notification handler failed")
		}
		return nil
	case result == nil && err == nil:
		log.Debug("request produced no response")
		return nil
	case err != nil:
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = internalError(err)
		}
		log.WithError(err).WithField("code", rpcErr.Code).Warn("request failed")
		return errorResponse(req, rpcErr)
	default:
		return &Response{JSONRPC: jsonRPCVersion, ID: *req.ID, Result: result}
	}
}

func errorResponse(req *Request, rpcErr *Error) *Response {
	resp := &Response{JSONRPC: jsonRPCVersion, Error: rpcErr}
	if req.ID != nil {
		resp.ID = *req.ID
	}
	return resp
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
