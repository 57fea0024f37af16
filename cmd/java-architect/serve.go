package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
	"github.com/zmlgit/java-architect-skills/pkg/osutil"
	"github.com/zmlgit/java-architect-skills/pkg/presenter"
	"github.com/zmlgit/java-architect-skills/pkg/prompts"
	"github.com/zmlgit/java-architect-skills/pkg/resources"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
	"github.com/zmlgit/java-architect-skills/pkg/tools"
	"github.com/zmlgit/java-architect-skills/pkg/version"
)

const serverInstructions = `Java architecture review skills. Use a "<skill>-review" prompt to adopt a
reviewer persona and the matching "<skill>_analyze" tool to run PMD static
analysis on an absolute source path.`

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	SkillsDir   string
	ResultsFile string
}

// NewServeConfig creates a ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		SkillsDir:   resolveSkillsDir(),
		ResultsFile: viper.GetString("results_file"),
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve skills to an MCP client over stdio",
	Long: `Serve skill prompts, analyzer tools and the latest results file to an MCP
client. Requests are read as newline-delimited JSON-RPC 2.0 from stdin and
responses are written to stdout, one per line. Logs go to stderr.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runServe(ctx, NewServeConfig(), os.Stdin, os.Stdout); err != nil {
			presenter.Error(err, "server failed")
			exitCode = exitFailure
		}
	},
}

// newServer wires the skill registry into a dispatcher.
func newServer(ctx context.Context, config *ServeConfig) (*rpc.Server, error) {
	registry := skills.Discover(ctx, config.SkillsDir)
	results, err := resources.NewResultsProvider(config.ResultsFile)
	if err != nil {
		return nil, err
	}

	logger.G(ctx).WithField("skills_dir", config.SkillsDir).
		WithField("skills", registry.Names()).
		WithField("results", results.URI()).
		Info("skills registered")

	return rpc.NewServer(version.ServerName, version.Get().Version,
		rpc.WithInstructions(serverInstructions),
		rpc.WithPrompts(prompts.NewProvider(registry)),
		rpc.WithTools(tools.NewProvider(registry)),
		rpc.WithResources(results),
	), nil
}

// runServe returns when input ends, the transport fails or ctx is done.
// Serve blocks on reads, so cancellation is observed from here. After
// cancellation it waits up to osutil.GracefulShutdownDelay for the request
// being handled to finish.
func runServe(ctx context.Context, config *ServeConfig, in io.Reader, out io.Writer) error {
	server, err := newServer(ctx, config)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(ctx, in, out)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-ctx.Done():
		logger.G(ctx).Info("shutdown signal received, stopping server")
		// An in-flight tools/call needs time to kill its process group.
		select {
		case <-serverErr:
		case <-time.After(osutil.GracefulShutdownDelay):
			logger.G(ctx).Warn("server did not stop within the shutdown delay")
		}
	}
	return nil
}
