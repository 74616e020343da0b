package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxHistory caps the limit argument of guard_history.
const maxHistory = 100

// HistoryTool handles the guard_history MCP tool.
// It lists recent file batches and validation runs from the journal.
type HistoryTool struct {
	journal Journal
}

// NewHistoryTool creates a HistoryTool. journal may be nil, in which case
// every call reports that the journal is disabled.
func NewHistoryTool(journal Journal) *HistoryTool {
	return &HistoryTool{journal: journal}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("guard_history",
		mcp.WithDescription(
			"List recent file batches and validation runs, newest first. "+
				"Use it to see which validations still fail after a series of edits.",
		),
		mcp.WithString("kind",
			mcp.Description("Only list one kind of entry. Default: both"),
			mcp.Enum(audit.KindBatch, audit.KindValidation),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max entries (default: %d, max: %d)", audit.DefaultLimit, maxHistory)),
		),
	)
}

// Handle processes the guard_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.journal == nil {
		return mcp.NewToolResultError("The run journal is disabled (audit.disabled in .hoofy-guard.yaml)."), nil
	}

	kind := strings.ToLower(strings.TrimSpace(req.GetString("kind", "")))
	if kind != "" && kind != audit.KindBatch && kind != audit.KindValidation {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid kind %q: use %q or %q", kind, audit.KindBatch, audit.KindValidation)), nil
	}
	limit := min(intArg(req, "limit", audit.DefaultLimit), maxHistory)

	entries, err := t.journal.Recent(kind, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText("No runs recorded yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## History (%d)\n\n", len(entries))
	for _, e := range entries {
		switch {
		case e.Batch != nil:
			fmt.Fprintf(&b, "- %s batch %s — %s\n", e.Batch.CreatedAt, shortID(e.Batch.ID), batchLine(e.Batch))
		case e.Validation != nil:
			fmt.Fprintf(&b, "- %s validation %s — %s\n", e.Validation.CreatedAt, shortID(e.Validation.ID), validationLine(e.Validation))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func batchLine(b *audit.Batch) string {
	verdict := "COMMITTED"
	if b.RolledBack {
		verdict = "ROLLED BACK"
	}
	line := fmt.Sprintf("%s, %d/%d files: %s", verdict, b.Succeeded, len(b.Files), strings.Join(b.Files, ", "))
	if b.Error != "" {
		line += " (" + b.Error + ")"
	}
	return line
}

func validationLine(v *audit.Validation) string {
	verdict := "PASSED"
	if !v.Success {
		verdict = "FAILED"
	}
	line := fmt.Sprintf("%s %s, %d error(s), %d warning(s), %dms: %s", v.Type, verdict, v.Errors, v.Warnings, v.DurationMs, v.Command)
	if v.FixApplied {
		line += " [fix applied]"
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
