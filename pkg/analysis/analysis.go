// Package analysis drives a provisioned PMD binary against a target and
// reduces its JSON report to a stable list of violations.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/osutil"
	"github.com/zmlgit/java-architect-skills/pkg/telemetry"
)

const (
	// DefaultTimeout bounds one PMD invocation.
	DefaultTimeout = 5 * time.Minute
	// DefaultFormat is the only format that gets reduced to violations.
	DefaultFormat = "json"

	exitViolationsFound = 4
)

// ExitError is returned when PMD exits with a code other than 0 or 4.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("pmd exited with code %d", e.Code)
	}
	return fmt.Sprintf("pmd exited with code %d: %s", e.Code, msg)
}

// Request describes one analysis.
type Request struct {
	Target string
	Rules  string
	Format string
}

// Result is the outcome of a successful PMD run. Report and Violations are
// set when the output parsed as JSON; Raw holds stdout verbatim otherwise.
type Result struct {
	ExitCode   int
	Report     *Report
	Violations []Violation
	Raw        string
	Stderr     string
}

// Parsed reports whether the output was reduced to violations.
func (r *Result) Parsed() bool {
	return r.Report != nil
}

// Runner invokes PMD.
type Runner struct {
	Binary  string
	Timeout time.Duration
	Exclude []string // doublestar globs matched against violation files
}

// NewRunner creates a Runner with the default timeout.
func NewRunner(binary string) *Runner {
	return &Runner{Binary: binary, Timeout: DefaultTimeout}
}

// Args returns the PMD command line for req.
func Args(req Request) []string {
	return []string{"check", "-d", req.Target, "-R", req.Rules, "-f", req.Format, "--no-cache"}
}

// Run analyzes req.Target with the rule set at req.Rules. Exit codes 0 and 4
// are successes; any other code yields an *ExitError carrying stderr.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Format == "" {
		req.Format = DefaultFormat
	}
	if _, err := os.Stat(req.Target); err != nil {
		return nil, errors.Wrapf(err, "target %s is not accessible", req.Target)
	}
	if _, err := os.Stat(req.Rules); err != nil {
		return nil, errors.Wrapf(err, "rules file %s is not accessible", req.Rules)
	}

	var result *Result
	err := telemetry.WithSpan(ctx, "analysis.run", func(ctx context.Context) error {
		var err error
		result, err = r.run(ctx, req)
		if result != nil {
			telemetry.SetAttributes(ctx,
				attribute.Int("pmd.exit_code", result.ExitCode),
				attribute.Int("pmd.violations", len(result.Violations)))
		}
		return err
	}, attribute.String("pmd.target", req.Target), attribute.String("pmd.format", req.Format))
	return result, err
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.G(ctx).WithField("target", req.Target).WithField("rules", req.Rules)
	log.Info("running pmd")

	var stdout, stderr bytes.Buffer
	cmd := osutil.CommandContext(ctx, r.Binary, Args(req)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errors.Errorf("pmd timed out after %s", timeout)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, errors.Wrap(ctx.Err(), "pmd interrupted")
	}

	code, ok := osutil.ExitCode(runErr)
	if !ok {
		return nil, errors.Wrap(runErr, "failed to run pmd")
	}
	if code != 0 && code != exitViolationsFound {
		return nil, &ExitError{Code: code, Stderr: stderr.String()}
	}

	result := &Result{ExitCode: code, Stderr: stderr.String()}
	if req.Format != DefaultFormat {
		result.Raw = stdout.String()
		return result, nil
	}

	report, err := ParseReport(stdout.Bytes())
	if err != nil {
		log.WithError(err).Warn("pmd output is not valid JSON, returning raw output")
		result.Raw = stdout.String()
		return result, nil
	}

	result.Report = report
	result.Violations = FilterExcluded(Reduce(report), req.Target, r.Exclude)
	log.WithField("violations", len(result.Violations)).
		WithField("duration", time.Since(started).Round(time.Millisecond)).
		Info("pmd finished")
	return result, nil
}
