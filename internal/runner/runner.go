// Package runner executes validation commands through the platform shell.
//
// Every run is bounded: output is captured up to a byte cap and a timeout
// kills the whole process group, so tools that fork workers (tsc --build,
// jest) cannot outlive the call.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults used when a Request leaves the corresponding field zero.
const (
	DefaultTimeout        = 5 * time.Minute
	DefaultMaxOutputBytes = 1 << 20
)

// exitNotFound is what POSIX shells return when the command does not exist.
const exitNotFound = 127

// execCommand is swapped in tests.
var execCommand = exec.Command

// Request describes one command run.
type Request struct {
	Command        string
	Dir            string
	Timeout        time.Duration
	MaxOutputBytes int64
	Env            []string
}

// Result is the observed outcome of a run. ExitCode is -1 when the process
// was killed or never started.
type Result struct {
	Command   string
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
}

// Output is stdout followed by stderr.
func (r *Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return strings.TrimRight(r.Stdout, "\n") + "\n" + r.Stderr
	}
}

// SpawnError means the command could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ErrCommandNotFound is the cause of a SpawnError when the shell could not
// find the program.
var ErrCommandNotFound = errors.New("command not found")

// TimeoutError means the run exceeded its timeout and was killed.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q timed out after %s", e.Command, e.Timeout)
}

// Runner executes shell commands.
type Runner struct {
	logger         *zap.Logger
	timeout        time.Duration
	maxOutputBytes int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout sets the timeout for requests that do not carry one.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutputBytes sets the capture cap per stream.
func WithMaxOutputBytes(n int64) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutputBytes = n
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:         zap.NewNop(),
		timeout:        DefaultTimeout,
		maxOutputBytes: DefaultMaxOutputBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

// Run executes req.Command and waits for it. A non-zero exit is not an
// error. The result is always non-nil; on timeout it holds the partial output
// and the error is a *TimeoutError, and on start failure a *SpawnError.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Command: req.Command, ExitCode: -1}
	if strings.TrimSpace(req.Command) == "" {
		return res, &SpawnError{Command: req.Command, Err: errors.New("empty command")}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	maxOut := req.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = r.maxOutputBytes
	}

	log := r.logger.With(zap.String("command", req.Command), zap.String("dir", req.Dir))

	name, args := shellCommand(req.Command)
	cmd := execCommand(name, args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	setupProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: maxOut}
	stderr := &limitedWriter{w: &stderrBuf, max: maxOut}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grandchildren may hold the pipes open after the group is killed.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Warn("spawn failed", zap.Error(err))
		return res, &SpawnError{Command: req.Command, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		if err := killProcessGroup(cmd); err != nil {
			log.Warn("kill failed", zap.Error(err))
		}
		waitErr = <-done
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.TimedOut = true
		}
	}

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated
	if res.Truncated {
		log.Warn("output truncated", zap.Int64("discarded", stdout.discarded+stderr.discarded))
	}

	switch {
	case res.TimedOut:
		log.Warn("command timed out", zap.Duration("timeout", timeout))
		return res, &TimeoutError{Command: req.Command, Timeout: timeout}
	case ctx.Err() != nil:
		return res, fmt.Errorf("running %q: %w", req.Command, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("waiting for %q: %w", req.Command, waitErr)
	}

	if res.ExitCode == exitNotFound && strings.Contains(res.Stderr, "not found") {
		log.Warn("command not found", zap.String("stderr", firstLine(res.Stderr)))
		return res, &SpawnError{Command: req.Command, Err: fmt.Errorf("%w: %s", ErrCommandNotFound, firstLine(res.Stderr))}
	}

	log.Debug("command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Int("stdout_bytes", len(res.Stdout)))
	return res, nil
}

// QuoteArgs quotes each argument for the platform shell and joins them.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// limitedWriter keeps the first max bytes and silently discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

func (lw *limitedWriter) String() string {
	s := lw.w.(*bytes.Buffer).String()
	if lw.truncated {
		s += fmt.Sprintf("\n...[truncated %d bytes]\n", lw.discarded)
	}
	return s
}
