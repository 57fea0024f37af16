package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
)

const personaPrompt = "---\ndescription: Spring Boot code reviewer\n---\n# Persona\r\n\nReview the code. ✓\n"

func setupRegistry(t *testing.T) *skills.Registry {
	t.Helper()
	root := t.TempDir()

	reviewer := filepath.Join(root, "spring_reviewer")
	require.NoError(t, os.MkdirAll(reviewer, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reviewer, skills.PromptFileName), []byte(personaPrompt), 0o644))

	// A skill directory without a prompt file is still registered.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "architect"), 0o755))

	return skills.Discover(context.Background(), root)
}

func getPrompt(p *Provider, name string) (*mcp.GetPromptResult, error) {
	var req mcp.GetPromptRequest
	req.Params.Name = name
	return p.GetPrompt(context.Background(), req)
}

func TestListPrompts(t *testing.T) {
	p := NewProvider(setupRegistry(t))

	prompts := p.ListPrompts(context.Background())
	require.Len(t, prompts, 2)
	assert.Equal(t, "architect-review", prompts[0].Name)
	assert.Equal(t, "Execute the architect Persona", prompts[0].Description)
	assert.Equal(t, "spring_reviewer-review", prompts[1].Name)
	assert.Equal(t, "Spring Boot code reviewer", prompts[1].Description)
}

func TestListPrompts_EmptyRegistry(t *testing.T) {
	p := NewProvider(skills.Discover(context.Background(), filepath.Join(t.TempDir(), "missing")))

	prompts := p.ListPrompts(context.Background())
	assert.NotNil(t, prompts)
	assert.Empty(t, prompts)
}

func TestGetPrompt_ReturnsExactBytes(t *testing.T) {
	p := NewProvider(setupRegistry(t))

	result, err := getPrompt(p, "spring_reviewer-review")
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	msg := result.Messages[0]
	assert.Equal(t, mcp.RoleUser, msg.Role)
	text, ok := msg.Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, personaPrompt, text.Text)
}

func TestGetPrompt_NoResponse(t *testing.T) {
	p := NewProvider(setupRegistry(t))

	for _, name := range []string{
		"missing-review",
		"spring_reviewer",
		"spring_reviewer-persona",
		"-review",
		"architect-review",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := getPrompt(p, name)
			assert.ErrorIs(t, err, rpc.ErrNoResponse)
			assert.Nil(t, result)
		})
	}
}
