// Package report renders validation and write results as markdown text.
//
// Section order is fixed so callers can split the text on headers.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/HendryAvila/hoofy-guard/internal/writer"
)

// Verdicts used in headers.
const (
	Passed = "PASSED"
	Failed = "FAILED"
)

// maxFixOutput bounds the auto-fix output quoted in the addendum.
const maxFixOutput = 8000

// Verdict returns PASSED or FAILED for r.
func Verdict(r *validation.Result) string {
	if r.Success {
		return Passed
	}
	return Failed
}

// Format renders a validation result.
func Format(r *validation.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Validation: %s — %s\n\n", r.Type, Verdict(r))
	fmt.Fprintf(&b, "Execution time: %dms\n\n", r.ExecutionTimeMs)

	s := r.Summary
	b.WriteString("### Summary\n\n")
	fmt.Fprintf(&b, "- Files: %d (%d with errors, %d with warnings)\n", s.TotalFiles, s.FilesWithErrors, s.FilesWithWarnings)
	fmt.Fprintf(&b, "- Errors: %d\n", s.TotalErrors)
	fmt.Fprintf(&b, "- Warnings: %d\n", s.TotalWarnings)
	fmt.Fprintf(&b, "- Fixable: %d\n", s.FixableIssues)
	if r.TimedOut {
		b.WriteString("- Timed out: yes\n")
	}
	b.WriteString("\n")

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "### Errors (%d)\n\n", len(r.Errors))
		for _, e := range r.Errors {
			b.WriteString(Bullet(e))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "### Warnings (%d)\n\n", len(r.Warnings))
		for _, w := range r.Warnings {
			b.WriteString(Bullet(w))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if !r.Success {
		if tips := Suggestions(r); len(tips) > 0 {
			b.WriteString("### Suggestions\n\n")
			for _, t := range tips {
				fmt.Fprintf(&b, "- %s\n", t)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "Command: %s\n", r.Command)

	if r.Fix != nil {
		b.WriteString("\n")
		b.WriteString(formatFix(r.Fix))
	}

	return b.String()
}

// Bullet renders one diagnostic as "- file:line:col — message (rule) [fixable]",
// leaving out whatever is unknown.
func Bullet(e validation.ValidationError) string {
	var b strings.Builder
	b.WriteString("- ")
	if loc := location(e); loc != "" {
		b.WriteString(loc)
		b.WriteString(" — ")
	}
	b.WriteString(oneLine(e.Message))
	if e.Rule != "" {
		fmt.Fprintf(&b, " (%s)", e.Rule)
	}
	if e.Fixable {
		b.WriteString(" [fixable]")
	}
	return b.String()
}

func location(e validation.ValidationError) string {
	if e.File == "" {
		return ""
	}
	parts := []string{e.File}
	if e.Line > 0 {
		parts = append(parts, strconv.Itoa(e.Line))
		if e.Column > 0 {
			parts = append(parts, strconv.Itoa(e.Column))
		}
	}
	return strings.Join(parts, ":")
}

// oneLine keeps multi-line messages (synthesized from raw output) inside
// their bullet by indenting continuation lines.
func oneLine(msg string) string {
	msg = strings.TrimRight(msg, "\n")
	return strings.ReplaceAll(msg, "\n", "\n  ")
}

var categoryOrder = []validation.Category{
	validation.CategorySyntax,
	validation.CategoryType,
	validation.CategoryLint,
	validation.CategoryTest,
	validation.CategoryBuild,
	validation.CategoryFormat,
	validation.CategoryCustom,
}

// Suggestions returns remediation hints for the categories present among the
// errors, one per category, in a fixed order.
func Suggestions(r *validation.Result) []string {
	present := make(map[validation.Category]bool)
	for _, e := range r.Errors {
		present[e.Category] = true
	}

	var tips []string
	if r.TimedOut {
		tips = append(tips, "The command timed out. Raise timeout_seconds or narrow the run with files.")
	}
	for _, c := range categoryOrder {
		if !present[c] {
			continue
		}
		switch c {
		case validation.CategorySyntax:
			tips = append(tips, "Fix syntax errors first; later diagnostics are often caused by them.")
		case validation.CategoryType:
			tips = append(tips, "Check the types at the reported locations against their declarations.")
		case validation.CategoryLint:
			if r.Summary.FixableIssues > 0 && r.Fix == nil {
				tips = append(tips, "Some lint issues are auto-fixable: re-run with fix enabled.")
			} else {
				tips = append(tips, "Review the reported lint rules and adjust the code or the rule configuration.")
			}
		case validation.CategoryTest:
			tips = append(tips, "Run the failing tests locally and compare expected and received values.")
		case validation.CategoryBuild:
			tips = append(tips, "Resolve missing modules, imports or build configuration reported above.")
		case validation.CategoryFormat:
			tips = append(tips, "Run the formatter in write mode (fix enabled) to reformat the listed files.")
		case validation.CategoryCustom:
			tips = append(tips, "Inspect the command output in the error message for details.")
		}
	}
	return tips
}

func formatFix(f *validation.FixResult) string {
	var b strings.Builder
	b.WriteString("### Auto-fix\n\n")
	fmt.Fprintf(&b, "Command: %s\n", f.Command)
	status := "applied"
	switch {
	case f.Error != "":
		status = "failed: " + f.Error
	case f.ExitCode != 0:
		status = "completed with remaining issues"
	}
	fmt.Fprintf(&b, "Exit code: %d (%s)\n", f.ExitCode, status)
	fmt.Fprintf(&b, "Duration: %dms\n", f.DurationMs)

	out := validation.Truncate(strings.TrimRight(f.Output, "\n"), maxFixOutput)
	if out != "" {
		b.WriteString("\n```\n")
		b.WriteString(out)
		b.WriteString("\n```\n")
	}
	b.WriteString("\nThe result above reflects the check before the fix ran; validate again to confirm.\n")
	return b.String()
}

// FormatBatch renders the outcome of a file batch. err is the error returned
// by the writer, if any.
func FormatBatch(outcomes []writer.WriteOutcome, err error) string {
	var b strings.Builder

	written, failed := writer.Counts(outcomes)

	verdict := "COMMITTED"
	if err != nil {
		verdict = "ROLLED BACK"
	}
	fmt.Fprintf(&b, "## File batch — %s\n\n", verdict)
	fmt.Fprintf(&b, "%d/%d files written successfully", written, len(outcomes))
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	b.WriteString("\n\n")

	for _, o := range outcomes {
		if o.Success {
			fmt.Fprintf(&b, "- ✓ %s\n", o.Path)
			continue
		}
		line := fmt.Sprintf("- ✗ %s", o.Path)
		if o.Error != "" {
			line += " — " + o.Error
		}
		if o.RolledBack {
			line += " (restored)"
		}
		b.WriteString(line + "\n")
	}

	if err != nil {
		fmt.Fprintf(&b, "\nError: %s\n", err)
		var we *writer.WriteError
		if errors.As(err, &we) && len(we.Rollback) > 0 {
			fmt.Fprintf(&b, "Rollback was incomplete. Originals are kept in %s\n", we.SessionDir)
		} else {
			b.WriteString("No file was changed: every path is back to its state before the batch.\n")
		}
	}
	return b.String()
}
