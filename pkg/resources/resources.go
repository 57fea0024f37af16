// Package resources publishes the latest analysis results file over
// resources/list and resources/read.
package resources

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
)

const mimeTypeJSON = "application/json"

// ResultsProvider exposes a single results file by its file:// URI. The file
// is listed only while it exists.
type ResultsProvider struct {
	path string
	uri  string
}

// NewResultsProvider resolves path against the working directory.
func NewResultsProvider(path string) (*ResultsProvider, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve results path %s", path)
	}
	return &ResultsProvider{path: abs, uri: FileURI(abs)}, nil
}

// FileURI renders an absolute path as a file:// URI.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// URI returns the resource URI of the results file.
func (p *ResultsProvider) URI() string {
	return p.uri
}

// ListResources returns the results file when present.
func (p *ResultsProvider) ListResources(ctx context.Context) []mcp.Resource {
	if info, err := os.Stat(p.path); err != nil || !info.Mode().IsRegular() {
		return []mcp.Resource{}
	}
	return []mcp.Resource{
		mcp.NewResource(p.uri, filepath.Base(p.path),
			mcp.WithResourceDescription("Violations found by the most recent analysis run"),
			mcp.WithMIMEType(mimeTypeJSON),
		),
	}
}

// ReadResource returns the results file as JSON text. Unknown URIs and a
// missing file are both reported as resource-not-found.
func (p *ResultsProvider) ReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if req.Params.URI != p.uri {
		return nil, rpc.NewError(mcp.RESOURCE_NOT_FOUND, "resource not found: %s", req.Params.URI)
	}

	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, rpc.NewError(mcp.RESOURCE_NOT_FOUND, "resource not found: %s", req.Params.URI)
	}
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", p.path).Warn("failed to read results file")
		return nil, errors.Wrap(err, "failed to read results file")
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: p.uri, MIMEType: mimeTypeJSON, Text: string(data)},
	}, nil
}
