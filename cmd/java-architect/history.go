package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zmlgit/java-architect-skills/pkg/db"
	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/presenter"
	"github.com/zmlgit/java-architect-skills/pkg/runs"
)

// HistoryConfig holds configuration for the history command
type HistoryConfig struct {
	Limit      int
	JSONOutput bool
}

// NewHistoryConfig creates a HistoryConfig with default values
func NewHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		Limit:      20,
		JSONOutput: false,
	}
}

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List recent analysis runs or show one run",
	Long: `List recent analyze invocations recorded in the local run ledger, newest first.
Pass a run ID, or a unique prefix of one, to show that run in full.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getHistoryConfigFromFlags(cmd)
		if len(args) == 1 {
			if err := runHistoryShow(cmd.Context(), config, args[0], cmd.OutOrStdout()); err != nil {
				presenter.Error(err, "failed to show run")
				exitCode = exitFailure
			}
			return
		}
		if err := runHistory(cmd.Context(), config, cmd.OutOrStdout()); err != nil {
			presenter.Error(err, "failed to list runs")
			exitCode = exitFailure
		}
	},
}

func init() {
	defaults := NewHistoryConfig()
	historyCmd.Flags().Int("limit", defaults.Limit, "Maximum number of runs to show")
	historyCmd.Flags().Bool("json", defaults.JSONOutput, "Output in JSON format")
}

func getHistoryConfigFromFlags(cmd *cobra.Command) *HistoryConfig {
	config := NewHistoryConfig()

	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = limit
	}
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSONOutput = jsonOutput
	}

	return config
}

func ledgerPath() (string, error) {
	if path := viper.GetString("storage.path"); path != "" {
		return path, nil
	}
	return db.DefaultDBPath()
}

func openLedger(ctx context.Context) (*runs.Store, error) {
	path, err := ledgerPath()
	if err != nil {
		return nil, err
	}
	return runs.Open(ctx, path)
}

func runHistory(ctx context.Context, config *HistoryConfig, w io.Writer) error {
	store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	recent, err := store.Recent(ctx, config.Limit)
	if err != nil {
		return err
	}

	if config.JSONOutput {
		return renderRunsJSON(w, recent)
	}
	return renderRunsTable(w, recent)
}

func runHistoryShow(ctx context.Context, config *HistoryConfig, id string, w io.Writer) error {
	store, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	if config.JSONOutput {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return fmt.Errorf("error generating JSON output: %v", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	return renderRunDetail(w, run)
}

func renderRunDetail(w io.Writer, run runs.Run) error {
	finished, duration := "-", "-"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Local().Format(time.RFC3339)
		duration = run.Duration().Round(time.Millisecond).String()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Skill:\t%s\n", run.Skill)
	fmt.Fprintf(tw, "Target:\t%s\n", run.Target)
	fmt.Fprintf(tw, "Rules:\t%s\n", run.Rules)
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Exit:\t%d\n", run.ExitCode)
	fmt.Fprintf(tw, "Violations:\t%d\n", run.Violations)
	fmt.Fprintf(tw, "Started:\t%s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(tw, "Finished:\t%s\n", finished)
	fmt.Fprintf(tw, "Duration:\t%s\n", duration)
	if run.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.Error)
	}
	return tw.Flush()
}

func renderRunsJSON(w io.Writer, list []runs.Run) error {
	if list == nil {
		list = []runs.Run{}
	}
	data, err := json.MarshalIndent(struct {
		Runs []runs.Run `json:"runs"`
	}{Runs: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("error generating JSON output: %v", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderRunsTable(w io.Writer, list []runs.Run) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No analysis runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tStarted\tStatus\tExit\tViolations\tDuration\tTarget")
	fmt.Fprintln(tw, "--\t-------\t------\t----\t----------\t--------\t------")

	for _, run := range list {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			shortID(run.ID),
			run.StartedAt.Local().Format(time.RFC3339),
			run.Status,
			run.ExitCode,
			run.Violations,
			duration,
			run.Target,
		)
	}

	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runRecorder writes one analyze invocation to the ledger. A nil store
// makes every method a no-op; the ledger never fails an analysis.
type runRecorder struct {
	store *runs.Store
	id    string
}

func startRecording(ctx context.Context, config *AnalyzeConfig, skill, target, rules string) *runRecorder {
	r := &runRecorder{}
	if !config.StorageEnabled {
		return r
	}

	log := logger.G(ctx)
	path := config.StoragePath
	if path == "" {
		var err error
		if path, err = db.DefaultDBPath(); err != nil {
			log.WithError(err).Warn("run history disabled")
			return r
		}
	}

	store, err := runs.Open(ctx, path)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		return r
	}
	run, err := store.Start(ctx, skill, target, rules)
	if err != nil {
		log.WithError(err).Warn("run history disabled")
		store.Close()
		return r
	}

	r.store, r.id = store, run.ID
	return r
}

func (r *runRecorder) finish(ctx context.Context, code, violations int, runErr error) {
	if r.store == nil {
		return
	}
	if err := r.store.Finish(context.WithoutCancel(ctx), r.id, code, violations, runErr); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record run outcome")
	}
}

func (r *runRecorder) close() {
	if r.store != nil {
		r.store.Close()
	}
}
