// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete writer, runner,
// validator and journal and injects them into the tools, prompts and
// resources that depend on them. No business logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/HendryAvila/hoofy-guard/internal/audit"
	"github.com/HendryAvila/hoofy-guard/internal/config"
	"github.com/HendryAvila/hoofy-guard/internal/prompts"
	"github.com/HendryAvila/hoofy-guard/internal/resources"
	"github.com/HendryAvila/hoofy-guard/internal/runner"
	"github.com/HendryAvila/hoofy-guard/internal/tools"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/HendryAvila/hoofy-guard/internal/writer"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Components are the shared dependencies of the tools and the CLI.
type Components struct {
	Root      string
	Writer    *writer.Writer
	Validator *validation.Validator
	// Journal is nil when the audit journal is disabled or failed to open.
	Journal *audit.Journal
}

// NewComponents builds the writer, runner, validator and journal for the
// project at root. The returned cleanup closes the journal; it is always
// non-nil and safe to call.
func NewComponents(root string, cfg *config.Config, logger *zap.Logger) (*Components, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// A relative backup dir is joined to the resolved root by the writer.
	backupDir := cfg.Writer.BackupDir
	if backupDir == "" {
		backupDir = config.DefaultBackupDir
	}
	w, err := writer.New(root,
		writer.WithBackupRoot(backupDir),
		writer.WithParallelism(cfg.Writer.Parallelism),
		writer.WithLogger(logger),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("creating writer: %w", err)
	}

	r := runner.New(
		runner.WithTimeout(cfg.ValidationTimeout()),
		runner.WithMaxOutputBytes(cfg.Validation.MaxOutputBytes),
		runner.WithLogger(logger),
	)

	cmds := validation.NewCommands(cfg.Validation.Commands, cfg.Validation.FixCommands, cfg.Validation.ConfigFlags)
	v := validation.New(r, cmds,
		validation.WithRoot(w.Root()),
		validation.WithLogger(logger),
	)

	c := &Components{Root: w.Root(), Writer: w, Validator: v}

	// The journal is an independent subsystem: if it fails to open, writes
	// and validations keep working and guard_history reports it disabled.
	cleanup := noop
	if cfg.Audit.Disabled {
		logger.Debug("audit journal disabled")
		return c, cleanup, nil
	}
	j, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		logger.Warn("audit journal disabled", zap.Error(err))
		return c, cleanup, nil
	}
	c.Journal = j
	cleanup = func() {
		if err := j.Close(); err != nil {
			logger.Warn("closing audit journal", zap.Error(err))
		}
	}
	return c, cleanup, nil
}

// journal returns c.Journal as a tools.Journal, keeping a disabled journal
// a nil interface.
func (c *Components) journal() tools.Journal {
	if c.Journal == nil {
		return nil
	}
	return c.Journal
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered for the project at root.
//
// The returned cleanup function closes the audit journal and must be called
// on shutdown (typically via defer). It is always non-nil.
func New(root string, cfg *config.Config, logger *zap.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c, cleanup, err := NewComponents(root, cfg, logger)
	if err != nil {
		return nil, noop, err
	}

	s := server.NewMCPServer(
		"hoofy-guard",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	toolLog := logger.Named("tools")

	writeTool := tools.NewWriteFilesTool(c.Writer, c.journal(), toolLog)
	s.AddTool(writeTool.Definition(), writeTool.Handle)

	validateTool := tools.NewValidateTool(c.Validator, c.journal(), toolLog)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	historyTool := tools.NewHistoryTool(c.journal())
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	// --- Register prompts ---

	workflowPrompt := prompts.NewWorkflowPrompt(c.Validator.Commands().Types())
	s.AddPrompt(workflowPrompt.Definition(), workflowPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(c.Validator.Commands(), c.Root)
	s.AddResource(resourceHandler.CommandsResource(), resourceHandler.HandleCommands)

	logger.Info("server ready",
		zap.String("root", c.Root),
		zap.String("version", Version),
		zap.Bool("journal", c.Journal != nil))

	return s, cleanup, nil
}

// noop is the cleanup function used when nothing needs closing.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use hoofy-guard.
func serverInstructions() string {
	return `You have access to hoofy-guard, a transactional file writer and validation runner.

## WRITING FILES

Use guard_write_files instead of writing files one by one whenever a change
touches more than one file. The batch is all-or-nothing: if any file fails to
write, every file is restored to its previous content and files the batch
created are removed. A ROLLED BACK report means the working tree is unchanged;
fix the reported mutation and resend the whole batch.

Each file needs its complete new content. Paths are relative to the project
root and may not point outside it.

## VALIDATING

After a batch is COMMITTED, run guard_validate for the checks the project uses:
typescript, javascript, eslint, test, build, format, or a custom command.
Read guard://commands for the exact command behind each type.

A validation FAILS whenever at least one error is reported, even if the
command exited 0. Warnings never fail a validation.

Pass fix: true for eslint or format to run the fixer after a failed check.
The report then shows the check result from before the fix; validate again
to confirm.

## HISTORY

guard_history lists recent batches and validations for this session.`
}
