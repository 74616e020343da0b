package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
}

func TestRun_Success(t *testing.T) {
	skipOnWindows(t)

	res, err := New().Run(context.Background(), Request{Command: "echo hello; echo oops >&2"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "hello\noops\n", res.Output())
	assert.False(t, res.TimedOut)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)

	res, err := New().Run(context.Background(), Request{Command: "echo bad; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "bad\n", res.Stdout)
}

func TestRun_WorkingDir(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()

	res, err := New().Run(context.Background(), Request{Command: "pwd -P", Dir: dir})
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(res.Stdout))
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	res, err := New().Run(context.Background(), Request{
		Command: "echo started; sleep 30 & sleep 30; wait",
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 200*time.Millisecond, te.Timeout)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stdout, "started")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_ParentCancel(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := New().Run(ctx, Request{Command: "sleep 30"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.TimedOut)
}

func TestRun_OutputCap(t *testing.T) {
	skipOnWindows(t)

	res, err := New(WithMaxOutputBytes(10)).Run(context.Background(), Request{Command: "printf '0123456789abcdef'"})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Stdout, "0123456789"))
	assert.Contains(t, res.Stdout, "[truncated 6 bytes]")
}

func TestRun_CommandNotFound(t *testing.T) {
	skipOnWindows(t)

	res, err := New().Run(context.Background(), Request{Command: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)

	var se *SpawnError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.Equal(t, exitNotFound, res.ExitCode)
}

func TestRun_StartFailure(t *testing.T) {
	orig := execCommand
	t.Cleanup(func() { execCommand = orig })
	execCommand = func(string, ...string) *exec.Cmd {
		return exec.Command("/nonexistent/hoofy-guard-shell")
	}

	res, err := New().Run(context.Background(), Request{Command: "true"})
	var se *SpawnError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "true", se.Command)
	assert.Equal(t, -1, res.ExitCode)
}

// TestHelperProcess isn't a real test. It stands in for the shell when
// execCommand is swapped, so the runner can be tested without sh or cmd.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("HELPER_STDERR"))
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}

func fakeShell(t *testing.T) {
	t.Helper()
	orig := execCommand
	t.Cleanup(func() { execCommand = orig })
	execCommand = func(string, ...string) *exec.Cmd {
		return exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--")
	}
}

func TestRun_HelperProcessExitAndStreams(t *testing.T) {
	fakeShell(t)

	res, err := New().Run(context.Background(), Request{
		Command: "npx eslint",
		Env: []string{
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_STDOUT=src/a.js:1:5: error bad (rule)",
			"HELPER_STDERR=warn",
			"HELPER_EXIT=3",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "src/a.js:1:5: error bad (rule)", res.Stdout)
	assert.Equal(t, "warn", res.Stderr)
	assert.Equal(t, "npx eslint", res.Command)
}

func TestRun_HelperProcessOutputCap(t *testing.T) {
	fakeShell(t)

	res, err := New(WithMaxOutputBytes(4)).Run(context.Background(), Request{
		Command: "build",
		Env:     []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_STDOUT=0123456789"},
	})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Stdout, "0123"))
	assert.Contains(t, res.Stdout, "truncated 6 bytes")
}

func TestRun_EmptyCommand(t *testing.T) {
	_, err := New().Run(context.Background(), Request{Command: "  "})
	var se *SpawnError
	assert.True(t, errors.As(err, &se))
}

func TestQuoteArgs(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"npx", "tsc", "--noEmit"}, "npx tsc --noEmit"},
		{[]string{"src/a b.ts"}, "'src/a b.ts'"},
		{[]string{"it's"}, `'it'\''s'`},
		{[]string{""}, "''"},
		{[]string{"$(rm -rf /)"}, "'$(rm -rf /)'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuoteArgs(tt.args))
	}
}
