package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/HendryAvila/hoofy-guard/internal/writer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func newTestJournal(t *testing.T) *audit.Journal {
	t.Helper()
	j, err := audit.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func newTestWriter(t *testing.T, opts ...writer.Option) (*writer.Writer, string) {
	t.Helper()
	root := t.TempDir()
	w, err := writer.New(root, opts...)
	require.NoError(t, err)
	return w, w.Root()
}

// fakeValidator returns a canned result and records the options it got.
type fakeValidator struct {
	result *validation.Result
	typ    string
	opts   validation.Options
	calls  int
}

func (f *fakeValidator) Validate(_ context.Context, typ string, opts validation.Options) *validation.Result {
	f.calls++
	f.typ, f.opts = typ, opts
	r := *f.result
	r.Type = typ
	return &r
}

// ─── guard_write_files ───────────────────────────────────────────────────────

func TestWriteFilesTool_Definition(t *testing.T) {
	def := NewWriteFilesTool(nil, nil, nil).Definition()
	assert.Equal(t, "guard_write_files", def.Name)
	assert.Contains(t, def.InputSchema.Properties, "files")
	assert.Equal(t, []string{"files"}, def.InputSchema.Required)
}

func TestWriteFilesTool_Commits(t *testing.T) {
	w, root := newTestWriter(t)
	j := newTestJournal(t)
	tool := NewWriteFilesTool(w, j, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"files": []any{
			map[string]any{"path": "src/a.ts", "content": "export const a = 1;\n"},
			map[string]any{"path": "README.md", "content": "# hi\n"},
		},
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(r))

	text := resultText(r)
	assert.Contains(t, text, "COMMITTED")
	assert.Contains(t, text, "2/2 files written successfully")

	got, err := os.ReadFile(filepath.Join(root, "src", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;\n", string(got))

	entries, err := j.Recent(audit.KindBatch, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"src/a.ts", "README.md"}, entries[0].Batch.Files)
	assert.Equal(t, 2, entries[0].Batch.Succeeded)
	assert.False(t, entries[0].Batch.RolledBack)
}

func TestWriteFilesTool_AcceptsStringifiedBatch(t *testing.T) {
	w, root := newTestWriter(t)
	tool := NewWriteFilesTool(w, nil, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"files": `[{"path":"a.txt","content":"one"}]`,
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(r))

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestWriteFilesTool_RejectsBadArguments(t *testing.T) {
	w, root := newTestWriter(t)
	tool := NewWriteFilesTool(w, nil, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing", map[string]any{}, "required"},
		{"empty", map[string]any{"files": []any{}}, "empty"},
		{"no content", map[string]any{"files": []any{
			map[string]any{"path": "a.txt", "content": "x"},
			map[string]any{"path": "b.txt"},
		}}, "files[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tool.Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.True(t, r.IsError)
			assert.Contains(t, resultText(r), "Invalid file batch")
			assert.Contains(t, resultText(r), tt.want)
		})
	}

	_, err := os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(err), "no file is written when arguments are rejected")
}

func TestWriteFilesTool_RollsBack(t *testing.T) {
	w, root := newTestWriter(t, writer.WithParallelism(1))
	j := newTestJournal(t)
	tool := NewWriteFilesTool(w, j, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("original"), 0o644))
	// A regular file where a directory is needed makes the second write fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocker"), []byte("x"), 0o644))

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"files": []any{
			map[string]any{"path": "keep.txt", "content": "changed"},
			map[string]any{"path": "blocker/child.txt", "content": "nope"},
		},
	}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "ROLLED BACK")
	assert.Contains(t, resultText(r), "1/2 files written successfully, 1 failed")
	assert.NotContains(t, resultText(r), "Rollback was incomplete")

	got, err := os.ReadFile(filepath.Join(root, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	entries, err := j.Recent(audit.KindBatch, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Batch.RolledBack)
	assert.NotEmpty(t, entries[0].Batch.Error)
}

// ─── guard_validate ──────────────────────────────────────────────────────────

func TestValidateTool_Definition(t *testing.T) {
	def := NewValidateTool(nil, nil, nil).Definition()
	assert.Equal(t, "guard_validate", def.Name)
	for _, p := range []string{"type", "command", "files", "fix", "fix_mode", "config_file", "working_dir", "timeout_seconds"} {
		assert.Contains(t, def.InputSchema.Properties, p)
	}

	mode, ok := def.InputSchema.Properties["fix_mode"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, mode["description"], "'inline' substitutes the fix variant for the check command")
}

func TestValidateTool_PassesOptions(t *testing.T) {
	fv := &fakeValidator{result: &validation.Result{Success: true, Command: "npx eslint --fix src/a.js"}}
	tool := NewValidateTool(fv, nil, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"type":            "ESLint",
		"files":           []any{"src/a.js"},
		"fix":             "true",
		"fix_mode":        "inline",
		"working_dir":     "web",
		"timeout_seconds": float64(30),
		"config_file":     "",
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, resultText(r))

	assert.Equal(t, "eslint", fv.typ)
	assert.Equal(t, []string{"src/a.js"}, fv.opts.Files)
	assert.True(t, fv.opts.Fix)
	assert.Equal(t, validation.FixInline, fv.opts.FixMode)
	assert.Equal(t, "web", fv.opts.WorkingDir)
	assert.Equal(t, float64(30), fv.opts.Timeout.Seconds())
	assert.Empty(t, fv.opts.ConfigFile)
	assert.True(t, strings.HasPrefix(resultText(r), "## Validation: eslint — PASSED"))
}

func TestValidateTool_FailedIsReportNotToolError(t *testing.T) {
	errs := []validation.ValidationError{{
		File: "src/index.ts", Line: 3, Column: 7, Rule: "TS2322",
		Message:  "Type 'string' is not assignable to type 'number'.",
		Severity: validation.SeverityError, Category: validation.CategoryType,
	}}
	fv := &fakeValidator{result: &validation.Result{
		Errors:  errs,
		Summary: validation.Summarize(errs, nil),
		Command: "npx tsc --noEmit",
	}}
	j := newTestJournal(t)
	tool := NewValidateTool(fv, j, nil)

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{"type": "typescript"}))
	require.NoError(t, err)
	assert.False(t, r.IsError)
	text := resultText(r)
	assert.Contains(t, text, "FAILED")
	assert.Contains(t, text, "- src/index.ts:3:7 — Type 'string' is not assignable to type 'number'. (TS2322)")

	entries, err := j.Recent(audit.KindValidation, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "typescript", entries[0].Validation.Type)
	assert.False(t, entries[0].Validation.Success)
	assert.Equal(t, 1, entries[0].Validation.Errors)
}

func TestValidateTool_RejectsBadArguments(t *testing.T) {
	fv := &fakeValidator{result: &validation.Result{Success: true}}
	tool := NewValidateTool(fv, nil, nil)

	for name, args := range map[string]map[string]any{
		"missing type":  {},
		"bad fix_mode":  {"type": "eslint", "fix_mode": "sometimes"},
		"negative time": {"type": "test", "timeout_seconds": float64(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			r, err := tool.Handle(context.Background(), makeReq(args))
			require.NoError(t, err)
			assert.True(t, r.IsError)
			assert.Contains(t, resultText(r), "Invalid validation request")
		})
	}
	assert.Zero(t, fv.calls)
}

// ─── guard_history ───────────────────────────────────────────────────────────

func TestHistoryTool_ListsEntries(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.RecordBatch(audit.Batch{Files: []string{"a.txt"}, Succeeded: 1})
	require.NoError(t, err)
	_, err = j.RecordValidation(audit.Validation{Type: "eslint", Command: "npx eslint", Errors: 2})
	require.NoError(t, err)

	tool := NewHistoryTool(j)

	r, err := tool.Handle(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	text := resultText(r)
	assert.Contains(t, text, "## History (2)")
	assert.Contains(t, text, "COMMITTED, 1/1 files: a.txt")
	assert.Contains(t, text, "eslint FAILED, 2 error(s)")

	r, err = tool.Handle(context.Background(), makeReq(map[string]any{"kind": "batch", "limit": float64(5)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(r), "## History (1)")
	assert.NotContains(t, resultText(r), "eslint")
}

func TestHistoryTool_Errors(t *testing.T) {
	r, err := NewHistoryTool(nil).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "disabled")

	r, err = NewHistoryTool(newTestJournal(t)).Handle(context.Background(), makeReq(map[string]any{"kind": "deploy"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)

	r, err = NewHistoryTool(newTestJournal(t)).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded yet.", resultText(r))
}
