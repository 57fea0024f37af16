package rpc

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
)

type listChanged struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type resourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type capabilities struct {
	Prompts   *listChanged         `json:"prompts,omitempty"`
	Resources *resourcesCapability `json:"resources,omitempty"`
	Tools     *listChanged         `json:"tools,omitempty"`
}

// InitializeResult is the initialize handshake response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    capabilities       `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

// handleInitialize echoes the client's protocol version when this server
// supports it and answers with the latest version otherwise.
func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p initializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	version := mcp.LATEST_PROTOCOL_VERSION
	if slices.Contains(mcp.ValidProtocolVersions, p.ProtocolVersion) {
		version = p.ProtocolVersion
	}

	logger.G(ctx).WithField("client", p.ClientInfo.Name).
		WithField("protocol_version", version).
		Info("client connected")

	return InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}
