// Package runs records every analysis invocation in the SQLite ledger so
// that past runs can be listed with the history command.
package runs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/zmlgit/java-architect-skills/pkg/db"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one ledger row.
type Run struct {
	ID         string     `db:"id" json:"id"`
	Skill      string     `db:"skill" json:"skill"`
	Target     string     `db:"target" json:"target"`
	Rules      string     `db:"rules" json:"rules"`
	Status     Status     `db:"status" json:"status"`
	ExitCode   int        `db:"exit_code" json:"exitCode"`
	Violations int        `db:"violations" json:"violations"`
	Error      string     `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Migrations returns the ledger schema.
func Migrations() []db.Migration {
	return []db.Migration{
		{
			Version:     20260301090000,
			Description: "Create analysis_runs table",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS analysis_runs (
						id TEXT PRIMARY KEY,
						skill TEXT NOT NULL,
						target TEXT NOT NULL,
						rules TEXT NOT NULL,
						status TEXT NOT NULL,
						exit_code INTEGER NOT NULL DEFAULT 0,
						violations INTEGER NOT NULL DEFAULT 0,
						error TEXT NOT NULL DEFAULT '',
						started_at DATETIME NOT NULL,
						finished_at DATETIME
					)
				`); err != nil {
					return errors.Wrap(err, "failed to create analysis_runs table")
				}
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs(started_at DESC)`)
				return errors.Wrap(err, "failed to create started_at index")
			},
		},
	}
}

// Store reads and writes the run ledger.
type Store struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

// Open opens the ledger at path, applying migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := db.OpenMigrated(ctx, path, Migrations())
	if err != nil {
		return nil, err
	}
	return NewStore(conn), nil
}

// NewStore wraps an already migrated connection.
func NewStore(conn *sqlx.DB) *Store {
	return &Store{
		db:    conn,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start inserts a running entry and returns it with its generated id.
func (s *Store) Start(ctx context.Context, skill, target, rules string) (Run, error) {
	run := Run{
		ID:        s.newID(),
		Skill:     skill,
		Target:    target,
		Rules:     rules,
		Status:    StatusRunning,
		StartedAt: s.now(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (id, skill, target, rules, status, exit_code, violations, error, started_at)
		VALUES (:id, :skill, :target, :rules, :status, :exit_code, :violations, :error, :started_at)
	`, run)
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to record run start")
	}
	return run, nil
}

// Finish records the outcome of a run. A non-nil runErr marks it failed.
func (s *Store) Finish(ctx context.Context, id string, exitCode, violations int, runErr error) error {
	status, message := StatusSucceeded, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, exit_code = ?, violations = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, exitCode, violations, message, s.now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to record run outcome")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("run %s not found", id)
	}
	return nil
}

// Get returns the run whose ID is id or starts with it. A prefix that
// matches more than one run is rejected.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	if id == "" {
		return Run{}, errors.New("run id is required")
	}
	var matches []Run
	if err := s.db.SelectContext(ctx, &matches,
		`SELECT * FROM analysis_runs WHERE substr(id, 1, length(?)) = ? ORDER BY started_at DESC LIMIT 2`,
		id, id); err != nil {
		return Run{}, errors.Wrapf(err, "failed to load run %s", id)
	}
	switch len(matches) {
	case 0:
		return Run{}, errors.Errorf("run %s not found", id)
	case 1:
		return matches[0], nil
	default:
		return Run{}, errors.Errorf("run id %s is ambiguous", id)
	}
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Run
	if err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM analysis_runs ORDER BY started_at DESC LIMIT ?`, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return out, nil
}
