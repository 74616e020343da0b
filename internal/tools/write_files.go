package tools

import (
	"context"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/HendryAvila/hoofy-guard/internal/params"
	"github.com/HendryAvila/hoofy-guard/internal/report"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// WriteFilesTool handles the guard_write_files MCP tool.
// It writes a batch of files all-or-nothing.
type WriteFilesTool struct {
	writer  BatchWriter
	journal Journal
	logger  *zap.Logger
}

// NewWriteFilesTool creates a WriteFilesTool. journal may be nil.
func NewWriteFilesTool(w BatchWriter, journal Journal, logger *zap.Logger) *WriteFilesTool {
	return &WriteFilesTool{writer: w, journal: journal, logger: loggerOrNop(logger).Named("guard_write_files")}
}

// Definition returns the MCP tool definition for registration.
func (t *WriteFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("guard_write_files",
		mcp.WithDescription(
			"Write several files as one transaction: either every file is written or "+
				"none is. Existing files are backed up first and restored if any write "+
				"fails; files created by a failed batch are removed. "+
				"Paths are relative to the project root and may not leave it.",
		),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Files to write, each an object with 'path' and 'content'. "+
				"Content is the complete new file text."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "File path relative to the project root"},
					"content": map[string]any{"type": "string", "description": "Complete file content"},
				},
				"required": []string{"path", "content"},
			}),
		),
	)
}

// Handle processes the guard_write_files tool call.
func (t *WriteFilesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	batch, err := params.Normalize(req.GetArguments(), params.Files)
	if err != nil {
		t.logger.Info("rejected arguments", zap.Error(err))
		return argumentError("file batch", err), nil
	}

	outcomes, err := t.writer.ApplyBatch(ctx, batch.Files)

	paths := make([]string, len(batch.Files))
	for i, m := range batch.Files {
		paths[i] = m.Path
	}
	entry := audit.Batch{Files: paths, RolledBack: err != nil}
	for _, o := range outcomes {
		if o.Success {
			entry.Succeeded++
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	record(t.journal, t.logger, func(j Journal) (string, error) { return j.RecordBatch(entry) })

	text := report.FormatBatch(outcomes, err)
	if err != nil {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}
