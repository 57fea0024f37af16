package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/mcp/rpc"
	"github.com/zmlgit/java-architect-skills/pkg/osutil"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
	"github.com/zmlgit/java-architect-skills/pkg/telemetry"
)

// AnalyzeInput is the argument object of every analyzer tool.
type AnalyzeInput struct {
	TargetPath string `json:"target_path" jsonschema:"description=Absolute path to code"`
	RulesFile  string `json:"rules_file,omitempty" jsonschema:"description=Rule set file to use instead of the skill default"`
}

// CommandFunc builds the subordinate process for one validated invocation.
// rules is always an absolute path.
type CommandFunc func(ctx context.Context, skill *skills.Skill, target, rules string) (*exec.Cmd, error)

// SelfCommand runs the skill's scripts entrypoint when it declares one and
// otherwise re-executes the current binary's analyze command.
func SelfCommand(ctx context.Context, skill *skills.Skill, target, rules string) (*exec.Cmd, error) {
	if entrypoint := skill.EntrypointPath(); entrypoint != "" {
		return osutil.CommandContext(ctx, entrypoint, target, rules), nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate server executable")
	}

	args := []string{"analyze", "--skill-dir", skill.Directory}
	for _, pattern := range skill.Tool.Exclude {
		args = append(args, "--exclude", pattern)
	}
	args = append(args, target, rules)
	return osutil.CommandContext(ctx, self, args...), nil
}

// CallTool validates the invocation, runs the analyzer and relays stdout
// followed by stderr. A non-zero exit status marks the result as an error.
// Validation failures are reported before any process is started.
func (p *Provider) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	skill, ok := p.registry.LookupTool(req.Params.Name)
	if !ok {
		return nil, rpc.InvalidParams("unknown tool: %s", req.Params.Name)
	}

	input, err := decodeInput(req.GetArguments())
	if err != nil {
		return nil, err
	}
	rules, err := resolveRules(skill, input.RulesFile)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithField(ctx, "tool", skill.Tool.Name)
	var result *mcp.CallToolResult
	err = telemetry.WithSpan(ctx, "tools.call", func(ctx context.Context) error {
		var err error
		result, err = p.run(ctx, skill, input.TargetPath, rules)
		return err
	},
		attribute.String("tool.name", skill.Tool.Name),
		attribute.String("tool.target", input.TargetPath),
	)
	return result, err
}

func decodeInput(arguments map[string]any) (AnalyzeInput, error) {
	var input AnalyzeInput
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &input,
	})
	if err != nil {
		return input, errors.Wrap(err, "failed to create argument decoder")
	}
	if err := decoder.Decode(arguments); err != nil {
		return input, rpc.InvalidParams("invalid arguments: %v", err)
	}

	switch {
	case input.TargetPath == "":
		return input, rpc.InvalidParams("target_path is required")
	case !filepath.IsAbs(input.TargetPath):
		return input, rpc.InvalidParams("target_path must be absolute: %s", input.TargetPath)
	}
	return input, nil
}

// resolveRules picks the rule set: the skill default, an absolute path, or a
// file name inside the skill's config directory.
func resolveRules(skill *skills.Skill, rulesFile string) (string, error) {
	switch {
	case rulesFile == "":
		return skill.RulesPath(), nil
	case filepath.IsAbs(rulesFile):
		return rulesFile, nil
	case filepath.IsLocal(rulesFile):
		return filepath.Join(skill.ConfigDir, rulesFile), nil
	default:
		return "", rpc.InvalidParams("rules_file must be absolute or inside the skill config directory: %s", rulesFile)
	}
}

func (p *Provider) run(ctx context.Context, skill *skills.Skill, target, rules string) (*mcp.CallToolResult, error) {
	log := logger.G(ctx)
	timeout := skill.Tool.Timeout
	if timeout <= 0 {
		timeout = skills.DefaultToolTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := p.command(execCtx, skill, target, rules)
	if err != nil {
		return nil, err
	}
	cmd.Env = append(os.Environ(), "NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("command", cmd.Args).Info("running analyzer")
	startTime := time.Now()
	runErr := cmd.Run()
	log = log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond))

	if execCtx.Err() == context.DeadlineExceeded {
		log.Warn("analyzer timed out")
		return nil, errors.Errorf("%s timed out after %v", skill.Tool.Name, timeout)
	}
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "analyzer cancelled")
	}

	code, exited := osutil.ExitCode(runErr)
	if !exited {
		return nil, errors.Wrapf(runErr, "failed to start %s", skill.Tool.Name)
	}
	log.WithField("exit_code", code).Info("analyzer finished")

	text := fmt.Sprintf("%s\n%s", stdout.String(), stderr.String())
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
		IsError: code != 0,
	}, nil
}
