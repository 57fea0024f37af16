// Package prompts serves skill persona prompts over prompts/list and
// prompts/get.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
)

// Provider exposes one "<skill>-review" prompt per registered skill.
type Provider struct {
	registry *skills.Registry
}

// NewProvider creates a prompt provider backed by registry.
func NewProvider(registry *skills.Registry) *Provider {
	return &Provider{registry: registry}
}

// ListPrompts returns prompts in skill name order.
func (p *Provider) ListPrompts(context.Context) []mcp.Prompt {
	out := make([]mcp.Prompt, 0, p.registry.Len())
	for _, skill := range p.registry.Skills() {
		out = append(out, mcp.NewPrompt(skill.PromptName(), mcp.WithPromptDescription(skill.Description)))
	}
	return out
}

// GetPrompt returns the prompt file verbatim as a single user message. An
// unknown prompt name or an unreadable prompt file yields rpc.ErrNoResponse.
func (p *Provider) GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	log := logger.G(ctx).WithField("prompt", req.Params.Name)

	skill, ok := p.registry.LookupPrompt(req.Params.Name)
	if !ok {
		log.Warn("prompt not found")
		return nil, rpc.ErrNoResponse
	}

	content, err := skill.ReadPrompt()
	if err != nil {
		log.WithError(err).Warn("prompt file unavailable")
		return nil, rpc.ErrNoResponse
	}

	return &mcp.GetPromptResult{
		Description: skill.Description,
		Messages: []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(string(content))),
		},
	}, nil
}
