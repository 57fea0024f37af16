package analysis

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

const (
	unknownValue    = "unknown"
	defaultPriority = 3
)

// Report is PMD's native JSON report. Pointer fields distinguish absent
// keys from zero values.
type Report struct {
	FormatVersion       int                  `json:"formatVersion"`
	PMDVersion          string               `json:"pmdVersion"`
	Timestamp           string               `json:"timestamp"`
	Files               []FileReport         `json:"files"`
	ProcessingErrors    []ProcessingError    `json:"processingErrors"`
	ConfigurationErrors []ConfigurationError `json:"configurationErrors"`
}

// FileReport lists the violations PMD found in one file.
type FileReport struct {
	Filename   *string        `json:"filename"`
	Violations []RawViolation `json:"violations"`
}

// RawViolation is a violation as PMD emits it.
type RawViolation struct {
	BeginLine       *int    `json:"beginline"`
	BeginColumn     *int    `json:"begincolumn"`
	EndLine         *int    `json:"endline"`
	EndColumn       *int    `json:"endcolumn"`
	Description     *string `json:"description"`
	Rule            *string `json:"rule"`
	RuleSet         *string `json:"ruleset"`
	Priority        *int    `json:"priority"`
	ExternalInfoURL *string `json:"externalInfoUrl"`
}

// ProcessingError is a file PMD could not analyze.
type ProcessingError struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// ConfigurationError is a rule PMD could not apply.
type ConfigurationError struct {
	Rule    string `json:"rule"`
	RuleSet string `json:"ruleset"`
	Message string `json:"message"`
}

// Violation is the reduced record written to the results file.
type Violation struct {
	File            string `json:"file"`
	Line            int    `json:"line"`
	EndLine         int    `json:"endLine"`
	Rule            string `json:"rule"`
	RuleSet         string `json:"ruleSet"`
	Priority        int    `json:"priority"`
	Description     string `json:"description"`
	ExternalInfoURL string `json:"externalInfoUrl"`
}

// ParseReport decodes PMD JSON output. The top level must be an object.
func ParseReport(data []byte) (*Report, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("pmd output is not a JSON object")
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(err, "failed to decode pmd report")
	}
	return &report, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// Reduce flattens a report into violations, in report order, applying
// defaults for absent fields.
func Reduce(report *Report) []Violation {
	violations := []Violation{}
	if report == nil {
		return violations
	}
	for _, file := range report.Files {
		filename := valueOr(file.Filename, unknownValue)
		for _, v := range file.Violations {
			violations = append(violations, Violation{
				File:            filename,
				Line:            valueOr(v.BeginLine, 0),
				EndLine:         valueOr(v.EndLine, 0),
				Rule:            valueOr(v.Rule, unknownValue),
				RuleSet:         valueOr(v.RuleSet, unknownValue),
				Priority:        valueOr(v.Priority, defaultPriority),
				Description:     valueOr(v.Description, ""),
				ExternalInfoURL: valueOr(v.ExternalInfoURL, ""),
			})
		}
	}
	return violations
}

// FilterExcluded drops violations whose file matches any pattern, either as
// given or relative to target.
func FilterExcluded(violations []Violation, target string, patterns []string) []Violation {
	if len(patterns) == 0 {
		return violations
	}
	kept := violations[:0:0]
	for _, v := range violations {
		if !excluded(v.File, target, patterns) {
			kept = append(kept, v)
		}
	}
	return kept
}

func excluded(file, target string, patterns []string) bool {
	candidates := []string{filepath.ToSlash(file)}
	if rel, err := filepath.Rel(target, file); err == nil && filepath.IsLocal(rel) {
		candidates = append(candidates, filepath.ToSlash(rel))
	}
	for _, pattern := range patterns {
		for _, candidate := range candidates {
			if ok, _ := doublestar.Match(pattern, candidate); ok {
				return true
			}
		}
	}
	return false
}

// Summary aggregates violations for display.
type Summary struct {
	Total      int
	Files      int
	ByPriority map[int]int
}

// Summarize counts violations per priority and distinct files.
func Summarize(violations []Violation) Summary {
	s := Summary{Total: len(violations), ByPriority: map[int]int{}}
	files := map[string]struct{}{}
	for _, v := range violations {
		s.ByPriority[v.Priority]++
		files[v.File] = struct{}{}
	}
	s.Files = len(files)
	return s
}

// Priorities returns the priorities present in s, most severe first.
func (s Summary) Priorities() []int {
	out := make([]int, 0, len(s.ByPriority))
	for p := range s.ByPriority {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
