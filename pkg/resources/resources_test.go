package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmlgit/java-architect-skills/pkg/analysis"
	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
)

func readResource(p *ResultsProvider, uri string) ([]mcp.ResourceContents, error) {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return p.ReadResource(context.Background(), req)
}

func TestFileURI(t *testing.T) {
	assert.Equal(t, "file:///work/pmd-results.json", FileURI("/work/pmd-results.json"))
	assert.Equal(t, "file:///work/my%20app/pmd-results.json", FileURI("/work/my app/pmd-results.json"))
}

func TestResultsProvider_ListedOnlyWhenPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), analysis.DefaultResultsFile)
	p, err := NewResultsProvider(path)
	require.NoError(t, err)

	assert.Empty(t, p.ListResources(context.Background()))

	require.NoError(t, analysis.WriteResults(path, nil))

	resources := p.ListResources(context.Background())
	require.Len(t, resources, 1)
	assert.Equal(t, FileURI(path), resources[0].URI)
	assert.Equal(t, analysis.DefaultResultsFile, resources[0].Name)
	assert.Equal(t, "application/json", resources[0].MIMEType)
}

func TestResultsProvider_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), analysis.DefaultResultsFile)
	violations := []analysis.Violation{{
		File:     "/work/src/OrderService.java",
		Line:     42,
		EndLine:  44,
		Rule:     "AvoidFieldInjection",
		RuleSet:  "spring",
		Priority: 1,
	}}
	require.NoError(t, analysis.WriteResults(path, violations))

	p, err := NewResultsProvider(path)
	require.NoError(t, err)

	contents, err := readResource(p, p.URI())
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, p.URI(), text.URI)
	assert.Equal(t, "application/json", text.MIMEType)

	expected, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(expected), text.Text)
	assert.Contains(t, text.Text, `"rule": "AvoidFieldInjection"`)
}

func TestResultsProvider_NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), analysis.DefaultResultsFile)
	p, err := NewResultsProvider(path)
	require.NoError(t, err)

	for _, uri := range []string{p.URI(), "file:///etc/passwd", "pmd-results.json"} {
		t.Run(uri, func(t *testing.T) {
			contents, err := readResource(p, uri)
			assert.Nil(t, contents)

			var rpcErr *rpc.Error
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, mcp.RESOURCE_NOT_FOUND, rpcErr.Code)
		})
	}
}
