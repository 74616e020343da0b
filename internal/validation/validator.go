package validation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/hoofy-guard/internal/runner"
	"go.uber.org/zap"
)

// Fix modes.
const (
	FixAfter  = "after"
	FixInline = "inline"
)

// maxSyntheticOutput bounds how much raw output is quoted in a synthesized
// error message.
const maxSyntheticOutput = 4000

// CommandRunner executes one shell command.
type CommandRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Options tune one validation.
type Options struct {
	// Command overrides the registered command for the type.
	Command string
	// Files are appended to the command as quoted arguments.
	Files []string
	// Fix requests the fix variant, see FixMode.
	Fix bool
	// FixMode is FixAfter (the default) or FixInline.
	FixMode string
	// ConfigFile is passed with the type's config flag.
	ConfigFile string
	// WorkingDir is resolved against the validator's root when relative.
	WorkingDir string
	// Timeout overrides the runner's default.
	Timeout time.Duration
}

// Validator runs validations.
type Validator struct {
	runner   CommandRunner
	commands *Commands
	root     string
	logger   *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithRoot sets the directory commands run in by default.
func WithRoot(root string) Option {
	return func(v *Validator) { v.root = root }
}

// New creates a Validator. A nil commands table means the built-in one.
func New(r CommandRunner, commands *Commands, opts ...Option) *Validator {
	if commands == nil {
		commands = DefaultCommands()
	}
	v := &Validator{
		runner:   r,
		commands: commands,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named("validation")
	return v
}

// Commands returns the validator's command table.
func (v *Validator) Commands() *Commands { return v.commands }

// Validate runs the check for typ and classifies its output. It never
// returns nil: spawn failures and unknown types yield a failed result with
// a single synthesized error.
func (v *Validator) Validate(ctx context.Context, typ string, opts Options) *Result {
	typ = strings.ToLower(strings.TrimSpace(typ))
	log := v.logger.With(zap.String("type", typ))

	command, inlineFix, err := v.buildCommand(typ, opts)
	if err != nil {
		log.Warn("no command", zap.Error(err))
		return failedResult(typ, "", err.Error(), 0)
	}

	req := runner.Request{
		Command: command,
		Dir:     v.workingDir(opts.WorkingDir),
		Timeout: opts.Timeout,
	}
	log.Debug("running", zap.String("command", command), zap.String("dir", req.Dir))

	res, runErr := v.runner.Run(ctx, req)
	result := v.evaluate(typ, command, res, runErr, log)

	if opts.Fix && !inlineFix && !result.Success {
		result.Fix = v.autoFix(ctx, typ, opts, req, log)
	}

	log.Info("validation finished",
		zap.Bool("success", result.Success),
		zap.Int("errors", result.Summary.TotalErrors),
		zap.Int("warnings", result.Summary.TotalWarnings),
		zap.Int64("ms", result.ExecutionTimeMs))
	return result
}

// buildCommand picks the command line. inlineFix reports that the fix
// variant replaced the check command.
func (v *Validator) buildCommand(typ string, opts Options) (string, bool, error) {
	base := strings.TrimSpace(opts.Command)
	inline := false
	if base == "" {
		check, ok := v.commands.Check(typ)
		if !ok {
			return "", false, fmt.Errorf("no command registered for validation type %q; pass a command", typ)
		}
		base = check
		if opts.Fix && opts.FixMode == FixInline {
			if fix, ok := v.commands.Fix(typ); ok {
				base, inline = fix, true
			}
		}
	}
	return v.commands.decorate(typ, base, opts.ConfigFile, opts.Files), inline, nil
}

func (v *Validator) workingDir(dir string) string {
	switch {
	case dir == "":
		return v.root
	case filepath.IsAbs(dir) || v.root == "":
		return dir
	}
	return filepath.Join(v.root, dir)
}

// evaluate turns a runner outcome into a Result.
func (v *Validator) evaluate(typ, command string, res *runner.Result, runErr error, log *zap.Logger) *Result {
	var spawnErr *runner.SpawnError
	if errors.As(runErr, &spawnErr) {
		log.Warn("spawn failed", zap.Error(runErr))
		r := failedResult(typ, command, "Failed to run command: "+spawnErr.Error(), durationMs(res))
		if res != nil {
			r.RawOutput = res.Output()
			r.ExitCode = res.ExitCode
		}
		return r
	}

	var timeoutErr *runner.TimeoutError
	timedOut := errors.As(runErr, &timeoutErr)
	if runErr != nil && !timedOut {
		// Canceled by the caller.
		r := failedResult(typ, command, runErr.Error(), durationMs(res))
		if res != nil {
			r.RawOutput = res.Output()
		}
		return r
	}

	raw := res.Output()
	issues, parseErr := classify(typ, res.Stdout, res.Stderr)
	if parseErr != nil {
		log.Debug("parser fell back to heuristic", zap.Error(parseErr))
	}

	var errs, warnings []ValidationError
	for _, i := range issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		} else {
			warnings = append(warnings, i)
		}
	}

	switch {
	case timedOut && len(errs) == 0:
		errs = append(errs, synthetic(timeoutErr.Error(), raw))
	case res.ExitCode != 0 && len(errs) == 0 && len(warnings) == 0:
		errs = append(errs, synthetic(fmt.Sprintf("Command exited with code %d", res.ExitCode), raw))
	}

	return &Result{
		Type:            typ,
		Success:         len(errs) == 0,
		Errors:          nonNil(errs),
		Warnings:        nonNil(warnings),
		Summary:         Summarize(errs, warnings),
		Command:         command,
		ExecutionTimeMs: durationMs(res),
		RawOutput:       raw,
		ExitCode:        res.ExitCode,
		TimedOut:        timedOut,
	}
}

// Truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n...[truncated]"
}

func synthetic(headline, raw string) ValidationError {
	msg := headline
	if out := strings.TrimSpace(raw); out != "" {
		msg += ": " + Truncate(out, maxSyntheticOutput)
	}
	return ValidationError{Message: msg, Severity: SeverityError, Category: CategoryCustom}
}

func failedResult(typ, command, msg string, ms int64) *Result {
	errs := []ValidationError{{Message: msg, Severity: SeverityError, Category: CategoryCustom}}
	return &Result{
		Type:            typ,
		Success:         false,
		Errors:          errs,
		Warnings:        []ValidationError{},
		Summary:         Summarize(errs, nil),
		Command:         command,
		ExecutionTimeMs: ms,
		ExitCode:        -1,
	}
}

func durationMs(res *runner.Result) int64 {
	if res == nil {
		return 0
	}
	return res.Duration.Milliseconds()
}

func nonNil(s []ValidationError) []ValidationError {
	if s == nil {
		return []ValidationError{}
	}
	return s
}
