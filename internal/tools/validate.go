package tools

import (
	"context"
	"time"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/HendryAvila/hoofy-guard/internal/params"
	"github.com/HendryAvila/hoofy-guard/internal/report"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ValidateTool handles the guard_validate MCP tool.
// It runs a check command and reports its diagnostics.
type ValidateTool struct {
	validator Validator
	journal   Journal
	logger    *zap.Logger
}

// NewValidateTool creates a ValidateTool. journal may be nil.
func NewValidateTool(v Validator, journal Journal, logger *zap.Logger) *ValidateTool {
	return &ValidateTool{validator: v, journal: journal, logger: loggerOrNop(logger).Named("guard_validate")}
}

// Definition returns the MCP tool definition for registration.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("guard_validate",
		mcp.WithDescription(
			"Run a validation command (type checker, linter, tests, build, formatter) "+
				"and get its diagnostics as a structured report. "+
				"Call this after guard_write_files to confirm the change is sound. "+
				"The verdict is FAILED whenever at least one error is reported.",
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Validation type: typescript, javascript, eslint, test, build, format, "+
				"or any type registered in .hoofy-guard.yaml. Use 'custom' together with 'command'."),
		),
		mcp.WithString("command",
			mcp.Description("Command to run instead of the registered one for the type"),
		),
		mcp.WithArray("files",
			mcp.Description("Files to pass to the command, relative to the working directory"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("fix",
			mcp.Description("Run the type's fix variant (eslint --fix, prettier --write). "+
				"See fix_mode for when it runs. Default: false"),
		),
		mcp.WithString("fix_mode",
			mcp.Description("'after' runs the fix only when the check fails and appends its output; "+
				"the verdict stays that of the check. "+
				"'inline' substitutes the fix variant for the check command, so the verdict is the fix run's. "+
				"Default: after"),
			mcp.Enum(validation.FixAfter, validation.FixInline),
		),
		mcp.WithString("config_file",
			mcp.Description("Tool configuration file, passed with the type's config flag"),
		),
		mcp.WithString("working_dir",
			mcp.Description("Directory to run in, relative to the project root. Default: the root"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Kill the command after this many seconds. Default: the configured timeout"),
		),
	)
}

// Handle processes the guard_validate tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vr, err := params.Normalize(req.GetArguments(), params.Validation)
	if err != nil {
		t.logger.Info("rejected arguments", zap.Error(err))
		return argumentError("validation request", err), nil
	}

	res := t.validator.Validate(ctx, vr.Type, validation.Options{
		Command:    vr.Command,
		Files:      vr.Files,
		Fix:        vr.Fix,
		FixMode:    vr.FixMode,
		ConfigFile: vr.ConfigFile,
		WorkingDir: vr.WorkingDir,
		Timeout:    time.Duration(vr.TimeoutSeconds) * time.Second,
	})

	entry := audit.Validation{
		Type:       res.Type,
		Command:    res.Command,
		Success:    res.Success,
		Errors:     len(res.Errors),
		Warnings:   len(res.Warnings),
		FixApplied: res.Fix.Applied(),
		DurationMs: res.ExecutionTimeMs,
	}
	record(t.journal, t.logger, func(j Journal) (string, error) { return j.RecordValidation(entry) })

	// FAILED is a verdict, not a tool error.
	return mcp.NewToolResultText(report.Format(res)), nil
}
