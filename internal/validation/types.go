// Package validation runs external checkers and classifies their output.
//
// Every checker (tsc, eslint, the test runner, the build, prettier, or an
// arbitrary command) is run through the runner package and its output is
// handed to the parser registered for the validation type. Parsers are pure
// functions in a closed table; anything they cannot interpret falls back to
// a line heuristic so a parsing miss never fails the validation itself.
//
// eslint's text formatters do not say which messages --fix can repair, so
// fixability there comes from a list of known fixable rules. Run eslint with
// -f json for exact results.
package validation

import (
	"fmt"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Category of a diagnostic.
type Category string

const (
	CategorySyntax Category = "syntax"
	CategoryType   Category = "type"
	CategoryLint   Category = "lint"
	CategoryTest   Category = "test"
	CategoryBuild  Category = "build"
	CategoryFormat Category = "format"
	CategoryCustom Category = "custom"
)

// Validation types with a registered parser.
const (
	TypeTypeScript = "typescript"
	TypeJavaScript = "javascript"
	TypeESLint     = "eslint"
	TypeTest       = "test"
	TypeBuild      = "build"
	TypeFormat     = "format"
	TypeCustom     = "custom"
)

// ValidationError is one diagnostic. Line and Column are 0 when unknown.
type ValidationError struct {
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
	Rule     string   `json:"rule,omitempty"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Fixable  bool     `json:"fixable"`
}

// Summary holds counts derived from a result's diagnostics.
type Summary struct {
	TotalFiles        int `json:"total_files"`
	FilesWithErrors   int `json:"files_with_errors"`
	FilesWithWarnings int `json:"files_with_warnings"`
	TotalErrors       int `json:"total_errors"`
	TotalWarnings     int `json:"total_warnings"`
	FixableIssues     int `json:"fixable_issues"`
}

// FixResult is the outcome of the auto-fix pass.
type FixResult struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Applied reports whether the fix command ran to a zero exit.
func (f *FixResult) Applied() bool {
	return f != nil && f.Error == "" && f.ExitCode == 0
}

// Result is the structured outcome of one validation.
type Result struct {
	Type            string            `json:"type"`
	Success         bool              `json:"success"`
	Errors          []ValidationError `json:"errors"`
	Warnings        []ValidationError `json:"warnings"`
	Summary         Summary           `json:"summary"`
	Command         string            `json:"command"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	RawOutput       string            `json:"raw_output"`
	ExitCode        int               `json:"exit_code"`
	TimedOut        bool              `json:"timed_out,omitempty"`
	Fix             *FixResult        `json:"fix,omitempty"`
}

// Summarize derives the summary counts from errors and warnings.
func Summarize(errs, warnings []ValidationError) Summary {
	all := make(map[string]struct{})
	withErrors := make(map[string]struct{})
	withWarnings := make(map[string]struct{})

	s := Summary{TotalErrors: len(errs), TotalWarnings: len(warnings)}
	for _, e := range errs {
		if e.File != "" {
			all[e.File] = struct{}{}
			withErrors[e.File] = struct{}{}
		}
		if e.Fixable {
			s.FixableIssues++
		}
	}
	for _, w := range warnings {
		if w.File != "" {
			all[w.File] = struct{}{}
			withWarnings[w.File] = struct{}{}
		}
		if w.Fixable {
			s.FixableIssues++
		}
	}
	s.TotalFiles = len(all)
	s.FilesWithErrors = len(withErrors)
	s.FilesWithWarnings = len(withWarnings)
	return s
}

// ParseError means a dedicated parser could not interpret the output.
type ParseError struct {
	Type   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s output: %s", e.Type, e.Reason)
}
