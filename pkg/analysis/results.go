package analysis

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DefaultResultsFile is written to the working directory after each run.
const DefaultResultsFile = "pmd-results.json"

// MarshalViolations renders violations as an indented JSON array, never null.
func MarshalViolations(violations []Violation) ([]byte, error) {
	if violations == nil {
		violations = []Violation{}
	}
	return json.MarshalIndent(violations, "", "  ")
}

// WriteResults overwrites path with the violations.
func WriteResults(path string, violations []Violation) error {
	data, err := MarshalViolations(violations)
	if err != nil {
		return errors.Wrap(err, "failed to encode results")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write results to %s", path)
	}
	return nil
}

// ReadResults loads a results file written by WriteResults.
func ReadResults(path string) ([]Violation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read results from %s", path)
	}
	var violations []Violation
	if err := json.Unmarshal(data, &violations); err != nil {
		return nil, errors.Wrapf(err, "failed to decode results from %s", path)
	}
	return violations, nil
}
