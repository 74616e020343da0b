package writer

import (
	"errors"
	"fmt"
)

// ErrOutsideRoot is returned (wrapped) when a mutation targets a path that
// escapes the project root.
var ErrOutsideRoot = errors.New("path is outside the project root")

// WriteError reports a batch that did not apply. Outcomes holds one entry per
// mutation, in input order. Err is the first failure that aborted the batch;
// Rollback lists restore failures, which never replace Err.
type WriteError struct {
	Outcomes []WriteOutcome
	Err      error
	Rollback []*RollbackError
	// SessionDir is the backup directory kept on disk when a rollback
	// failed, so the originals can still be recovered by hand.
	SessionDir string
}

func (e *WriteError) Error() string {
	written, failed := Counts(e.Outcomes)
	msg := fmt.Sprintf("%d/%d files written successfully, %d failed", written, len(e.Outcomes), failed)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Rollback) > 0 {
		msg += fmt.Sprintf(" (%d rollback failure(s), backups kept in %s)", len(e.Rollback), e.SessionDir)
	}
	return msg
}

func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Rollback)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, rb := range e.Rollback {
		errs = append(errs, rb)
	}
	return errs
}

// Counts returns how many mutations were written, including those written
// and then rolled back, and how many failed.
func Counts(outcomes []WriteOutcome) (written, failed int) {
	for _, o := range outcomes {
		if o.Success || o.Written {
			written++
		}
		if o.Failed {
			failed++
		}
	}
	return written, failed
}

// RollbackFailures joins every rollback failure into one error, or nil.
func (e *WriteError) RollbackFailures() error {
	errs := make([]error, len(e.Rollback))
	for i, rb := range e.Rollback {
		errs[i] = rb
	}
	return errors.Join(errs...)
}

// RollbackError is a failure to restore one path to its pre-batch state.
type RollbackError struct {
	Path string
	Op   string // "restore" or "remove"
	Err  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
