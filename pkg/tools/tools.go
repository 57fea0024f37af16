// Package tools exposes each skill's analyzer as an MCP tool. A call is
// validated up front and then handed to a subordinate process whose combined
// output is relayed back to the client.
package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
)

// GenerateSchema reflects T into an inline JSON schema.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T

	return reflector.Reflect(v)
}

// Provider backs tools/list and tools/call with the skill registry.
type Provider struct {
	registry *skills.Registry
	command  CommandFunc
}

// Option configures a Provider.
type Option func(*Provider)

// WithCommand replaces the subordinate process factory.
func WithCommand(fn CommandFunc) Option {
	return func(p *Provider) {
		p.command = fn
	}
}

// NewProvider creates a tool provider for every skill exposing an analyzer.
func NewProvider(registry *skills.Registry, opts ...Option) *Provider {
	p := &Provider{
		registry: registry,
		command:  SelfCommand,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ListTools returns one descriptor per analyzer skill, in skill name order.
func (p *Provider) ListTools(ctx context.Context) []mcp.Tool {
	schema, err := json.Marshal(GenerateSchema[AnalyzeInput]())
	if err != nil {
		logger.G(ctx).WithError(err).Error("failed to generate analyzer input schema")
		return []mcp.Tool{}
	}

	out := []mcp.Tool{}
	for _, skill := range p.registry.ToolSkills() {
		out = append(out, mcp.NewToolWithRawSchema(skill.Tool.Name, skill.Tool.Description, schema))
	}
	return out
}
