package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zmlgit/java-architect-skills/pkg/analysis"
	"github.com/zmlgit/java-architect-skills/pkg/binaries"
	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/presenter"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
)

const defaultSkillsDirName = "skills"

var shutdownTracing = func(context.Context) error { return nil }

// exitCode is set by commands that fail after printing their own error, so
// that deferred spans end and traces flush before the process exits.
var exitCode = exitOK

func init() {
	// .env is optional
	_ = godotenv.Load()

	viper.SetEnvPrefix("JAVA_ARCHITECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.java-architect")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("results_file", analysis.DefaultResultsFile)
	viper.SetDefault("pmd.version", binaries.DefaultPMDVersion)
	viper.SetDefault("pmd.mirrors", binaries.DefaultPMDMirrors)
	viper.SetDefault("analysis.timeout", analysis.DefaultTimeout)
	viper.SetDefault("provisioning.verify_timeout", binaries.DefaultVerifyTimeout)
	viper.SetDefault("provisioning.download_timeout", binaries.DefaultDownloadTimeout)
	viper.SetDefault("storage.enabled", true)
}

var rootCmd = &cobra.Command{
	Use:   "java-architect",
	Short: "Java architecture review skills for MCP clients",
	Long: `java-architect serves Java/Spring review personas and a PMD-backed static
analysis tool to MCP clients over stdio, and runs the same analysis from the
command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
			return err
		}
		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return nil
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if err := shutdownTracing(cmd.Context()); err != nil {
			logger.G(cmd.Context()).WithError(err).Debug("failed to flush traces")
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

// resolveSkillsDir returns the configured skills directory, else the one
// shipped next to the executable, else ./skills.
func resolveSkillsDir() string {
	if dir := viper.GetString("skills_dir"); dir != "" {
		return dir
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir := filepath.Join(filepath.Dir(exe), defaultSkillsDirName)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return defaultSkillsDirName
}

// defaultSkillDir is the skill whose rule set analyze uses when run by hand.
func defaultSkillDir() string {
	return filepath.Join(resolveSkillsDir(), "spring_reviewer")
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().String("skills-dir", "", "Directory containing skill folders")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("skills_dir", rootCmd.PersistentFlags().Lookup("skills-dir"))

	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(withTracing(analyzeCmd))
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "")
		exitCode = exitFailure
	}
	if exitCode != exitOK {
		os.Exit(exitCode)
	}
}

// skillForAnalysis loads the skill directory used by analyze. A missing
// directory is not fatal: the caller then needs an explicit rules file.
func skillForAnalysis(ctx context.Context, dir string) *skills.Skill {
	skill, err := skills.Load(ctx, dir)
	if err != nil {
		logger.G(ctx).WithError(err).Debug("skill directory unavailable")
		return nil
	}
	return skill
}
