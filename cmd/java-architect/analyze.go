package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zmlgit/java-architect-skills/pkg/analysis"
	"github.com/zmlgit/java-architect-skills/pkg/binaries"
	"github.com/zmlgit/java-architect-skills/pkg/presenter"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
	"github.com/zmlgit/java-architect-skills/pkg/telemetry"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// AnalyzeConfig holds configuration for the analyze command
type AnalyzeConfig struct {
	SkillDir       string
	Format         string
	ResultsFile    string
	Exclude        []string
	Timeout        time.Duration
	PMD            binaries.PMDOptions
	StorageEnabled bool
	StoragePath    string
	Quiet          bool
}

// NewAnalyzeConfig creates an AnalyzeConfig with default values
func NewAnalyzeConfig() *AnalyzeConfig {
	return &AnalyzeConfig{
		Format:         analysis.DefaultFormat,
		ResultsFile:    analysis.DefaultResultsFile,
		Timeout:        analysis.DefaultTimeout,
		StorageEnabled: true,
	}
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [target] [rules]",
	Short: "Provision PMD and analyze a Java source tree",
	Long: `Ensure PMD is installed under ~/.spring-reviewer/tools, then analyze target
with the rule set (default: the skill's config/critical-rules.xml).

Violations are summarized, printed as JSON and written to the results file in
the working directory. Without a target the command only provisions PMD and
prints the installation summary.

Exit status is 0 when the analysis completed (violations included), 1 on
failure and 130 when interrupted.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		config := getAnalyzeConfigFromFlags(cmd)
		exitCode = runAnalyze(ctx, config, args, presenter.Default(), cmd.OutOrStdout())
	},
}

func init() {
	defaults := NewAnalyzeConfig()
	analyzeCmd.Flags().String("skill-dir", "", "Skill directory providing the default rule set (default <skills-dir>/spring_reviewer)")
	analyzeCmd.Flags().String("format", defaults.Format, "PMD report format; only json is reduced to violations")
	analyzeCmd.Flags().String("results", "", "Results file (default "+defaults.ResultsFile+")")
	analyzeCmd.Flags().StringSlice("exclude", nil, "Glob of files whose violations are dropped (repeatable)")
	analyzeCmd.Flags().Duration("timeout", 0, "PMD run timeout (default "+defaults.Timeout.String()+")")
	analyzeCmd.Flags().Bool("no-history", false, "Do not record this run in the history ledger")
	analyzeCmd.Flags().BoolP("quiet", "q", false, "Only print errors and the results JSON")
}

func getAnalyzeConfigFromFlags(cmd *cobra.Command) *AnalyzeConfig {
	config := NewAnalyzeConfig()
	config.SkillDir = defaultSkillDir()
	config.ResultsFile = viper.GetString("results_file")
	config.Timeout = viper.GetDuration("analysis.timeout")
	config.StorageEnabled = viper.GetBool("storage.enabled")
	config.StoragePath = viper.GetString("storage.path")
	config.PMD = binaries.PMDOptions{
		Version:         viper.GetString("pmd.version"),
		ToolsDir:        viper.GetString("tools_dir"),
		Mirrors:         viper.GetStringSlice("pmd.mirrors"),
		SHA256:          viper.GetString("pmd.sha256"),
		VerifyTimeout:   viper.GetDuration("provisioning.verify_timeout"),
		DownloadTimeout: viper.GetDuration("provisioning.download_timeout"),
	}

	flags := cmd.Flags()
	if skillDir, err := flags.GetString("skill-dir"); err == nil && skillDir != "" {
		config.SkillDir = skillDir
	}
	if format, err := flags.GetString("format"); err == nil && format != "" {
		config.Format = format
	}
	if results, err := flags.GetString("results"); err == nil && results != "" {
		config.ResultsFile = results
	}
	if exclude, err := flags.GetStringSlice("exclude"); err == nil && len(exclude) > 0 {
		config.Exclude = exclude
	}
	if timeout, err := flags.GetDuration("timeout"); err == nil && timeout > 0 {
		config.Timeout = timeout
	}
	if noHistory, err := flags.GetBool("no-history"); err == nil && noHistory {
		config.StorageEnabled = false
	}
	if quiet, err := flags.GetBool("quiet"); err == nil {
		config.Quiet = quiet
	}

	return config
}

// runAnalyze provisions PMD, prints the installation summary and, when a
// target is given, analyzes it. It returns the process exit status.
func runAnalyze(ctx context.Context, config *AnalyzeConfig, args []string, p presenter.Presenter, out io.Writer) int {
	p.SetQuiet(config.Quiet)

	spec, err := binaries.PMDSpec(config.PMD)
	if err != nil {
		return fail(ctx, p, err, "invalid PMD configuration")
	}

	opts := []binaries.Option{
		binaries.WithStateFunc(func(state binaries.State, _ error) {
			reportState(p, spec, state)
		}),
	}
	if !p.IsQuiet() {
		opts = append(opts, binaries.WithProgressFunc(p.Progress))
	}
	inst, err := binaries.NewProvisioner(spec, opts...).Ensure(ctx)
	if err != nil {
		code := fail(ctx, p, err, "failed to provision PMD")
		if errors.Is(err, binaries.ErrMirrorsExhausted) {
			p.Warning(binaries.ManualInstallHint(spec))
		}
		return code
	}

	p.Installation(inst)
	if len(args) == 0 {
		return exitOK
	}

	target, err := filepath.Abs(args[0])
	if err != nil {
		return fail(ctx, p, err, "invalid target")
	}
	skill := skillForAnalysis(ctx, config.SkillDir)
	rules, err := analysisRules(config, skill, args)
	if err != nil {
		return fail(ctx, p, err, "invalid rules file")
	}
	exclude := config.Exclude
	if len(exclude) == 0 && skill != nil && skill.HasTool() {
		exclude = skill.Tool.Exclude
	}

	skillName := ""
	if skill != nil {
		skillName = skill.Name
	}
	recorder := startRecording(ctx, config, skillName, target, rules)
	defer recorder.close()

	p.Step(fmt.Sprintf("Analyzing %s", target))
	p.Info(fmt.Sprintf("Rules: %s", rules))
	runner := analysis.NewRunner(inst.BinaryPath)
	runner.Timeout = config.Timeout
	runner.Exclude = exclude

	result, err := runner.Run(ctx, analysis.Request{Target: target, Rules: rules, Format: config.Format})
	if err != nil {
		code := -1
		var exitErr *analysis.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}
		recorder.finish(ctx, code, 0, err)
		return fail(ctx, p, err, "analysis failed")
	}

	violations, err := reportResult(config, result, p, out)
	recorder.finish(ctx, result.ExitCode, len(violations), err)
	if err != nil {
		return fail(ctx, p, err, "failed to save results")
	}
	return exitOK
}

// fail reports err to the user and on the command span and returns the
// exit status for it.
func fail(ctx context.Context, p presenter.Presenter, err error, msg string) int {
	telemetry.RecordError(ctx, err)
	p.Error(err, msg)
	return failureCode(ctx)
}

// reportResult prints the outcome and persists json results. Output that
// did not parse is printed verbatim and recorded as an empty result set.
func reportResult(config *AnalyzeConfig, result *analysis.Result, p presenter.Presenter, out io.Writer) ([]analysis.Violation, error) {
	if config.Format != analysis.DefaultFormat {
		fmt.Fprint(out, result.Raw)
		return nil, nil
	}

	violations := result.Violations
	if !result.Parsed() {
		p.Warning("PMD output is not valid JSON, showing it verbatim")
		fmt.Fprintln(out, result.Raw)
		violations = nil
	}

	if err := analysis.WriteResults(config.ResultsFile, violations); err != nil {
		return violations, err
	}

	p.Summary(analysis.Summarize(violations))
	if result.Parsed() {
		data, err := analysis.MarshalViolations(violations)
		if err != nil {
			return violations, err
		}
		fmt.Fprintln(out, string(data))
	}
	p.Success(fmt.Sprintf("Results written to %s", config.ResultsFile))
	return violations, nil
}

func analysisRules(config *AnalyzeConfig, skill *skills.Skill, args []string) (string, error) {
	if len(args) > 1 {
		return filepath.Abs(args[1])
	}
	if skill != nil && skill.HasTool() {
		return skill.RulesPath(), nil
	}
	if config.SkillDir == "" {
		return "", errors.New("no rules file given and no skill directory configured")
	}
	return filepath.Abs(filepath.Join(config.SkillDir, skills.ConfigDirName, skills.DefaultRulesFile))
}

func reportState(p presenter.Presenter, spec binaries.Spec, state binaries.State) {
	switch state {
	case binaries.StateDownloading:
		p.Step(fmt.Sprintf("Downloading %s %s", spec.Name, spec.Version))
	case binaries.StateExtracting:
		p.Step(fmt.Sprintf("Extracting to %s", spec.InstallDir()))
	case binaries.StateVerifying:
		p.Step("Verifying installation")
	}
}

func failureCode(ctx context.Context) int {
	if ctx.Err() != nil {
		return exitInterrupted
	}
	return exitFailure
}
