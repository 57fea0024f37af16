package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Request is one decoded input line.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *mcp.RequestId  `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must never be answered.
func (r *Request) IsNotification() bool {
	return r.ID == nil || r.ID.IsNil()
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      mcp.RequestId `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. Handlers return it to choose the code;
// any other error is reported as an internal error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidParams reports bad or missing arguments.
func InvalidParams(format string, args ...any) *Error {
	return NewError(mcp.INVALID_PARAMS, format, args...)
}

func methodNotFound(method string) *Error {
	return NewError(mcp.METHOD_NOT_FOUND, "method not found: %s", method)
}

func internalError(err error) *Error {
	return &Error{Code: mcp.INTERNAL_ERROR, Message: err.Error()}
}

// decodeParams unmarshals params into v. Absent params leave v untouched.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return InvalidParams("invalid params: %v", err)
	}
	return nil
}
