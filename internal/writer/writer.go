// Package writer applies batches of file mutations all-or-nothing.
//
// A batch runs in strictly ordered phases: every path is resolved and checked
// against the project root, every existing target is backed up, every file is
// written, and then the batch either commits (backups discarded) or rolls
// back (originals restored, created files removed). Work inside a phase runs
// in parallel.
package writer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent captures and writes.
const DefaultParallelism = 4

// errSkipped marks a write that never started because the batch aborted.
var errSkipped = errors.New("not written: batch aborted")

// FileMutation replaces the whole content of one file.
type FileMutation struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteOutcome is the result for one mutation of a batch. Failed marks the
// mutation that was rejected or whose write failed; Written marks content that
// landed before the batch failed and was then rolled back.
type WriteOutcome struct {
	Path       string `json:"path"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Written    bool   `json:"written,omitempty"`
	RolledBack bool   `json:"rolled_back,omitempty"`
}

// Writer applies batches under a single project root.
type Writer struct {
	root        string
	backupRoot  string
	parallelism int
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithBackupRoot sets the directory that holds backup sessions.
func WithBackupRoot(dir string) Option {
	return func(w *Writer) { w.backupRoot = dir }
}

// WithParallelism bounds concurrent file operations. Values below 1 are ignored.
func WithParallelism(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.parallelism = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Writer confined to root.
func New(root string, opts ...Option) (*Writer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}

	w := &Writer{
		root:        real,
		backupRoot:  filepath.Join(real, ".hoofy-guard", "backups"),
		parallelism: DefaultParallelism,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if !filepath.IsAbs(w.backupRoot) {
		w.backupRoot = filepath.Join(w.root, w.backupRoot)
	}
	w.logger = w.logger.Named("writer")
	return w, nil
}

// Root returns the resolved project root.
func (w *Writer) Root() string { return w.root }

// target is one distinct path of a batch after duplicate collapse.
type target struct {
	abs     string
	content string
	// indexes are the positions of every mutation that resolved here.
	indexes []int

	started bool
	renamed bool     // new content is in place
	err     error
	dirs    []string // directories created for this path, outermost first
}

// ApplyBatch writes every mutation or none of them. On failure the returned
// error is a *WriteError whose outcomes match the returned slice.
func (w *Writer) ApplyBatch(ctx context.Context, batch []FileMutation) ([]WriteOutcome, error) {
	outcomes := make([]WriteOutcome, len(batch))
	for i, m := range batch {
		outcomes[i] = WriteOutcome{Path: m.Path}
	}
	if len(batch) == 0 {
		return outcomes, nil
	}

	log := w.logger.With(zap.Int("mutations", len(batch)))

	// Phase 1a: resolve. No filesystem change happens before this passes.
	targets, err := w.plan(batch)
	if err != nil {
		for i := range outcomes {
			outcomes[i].Error = "not written: batch rejected"
		}
		var pe *pathError
		if errors.As(err, &pe) {
			outcomes[pe.index].Error = pe.Error()
			outcomes[pe.index].Failed = true
		}
		log.Warn("batch rejected", zap.Error(err))
		return outcomes, &WriteError{Outcomes: outcomes, Err: err}
	}

	// Phase 1b: backup.
	session := NewBackupSession(w.backupRoot, w.now())
	log = log.With(zap.String("session", session.ID))
	if err := w.capture(ctx, session, targets); err != nil {
		_ = session.Discard()
		for i := range outcomes {
			outcomes[i].Error = "not written: backup failed"
			outcomes[i].Failed = true
		}
		log.Error("backup failed", zap.Error(err))
		return outcomes, &WriteError{Outcomes: outcomes, Err: fmt.Errorf("backup: %w", err)}
	}
	log.Debug("backups captured", zap.Int("existing", countExisting(session, targets)))

	// Phase 2: write.
	writeErr := w.write(ctx, targets)

	// Phase 3: commit.
	if writeErr == nil {
		if err := session.Discard(); err != nil {
			log.Warn("discarding backups", zap.Error(err))
		}
		for _, t := range targets {
			for _, i := range t.indexes {
				outcomes[i].Success = true
			}
		}
		log.Info("batch committed", zap.Int("files", len(targets)))
		return outcomes, nil
	}

	// Phase 4: rollback.
	rbErrs := w.rollback(session, targets)
	for _, t := range targets {
		for _, i := range t.indexes {
			switch {
			case t.err != nil:
				outcomes[i].Error = t.err.Error()
				outcomes[i].Failed = true
			case !t.started:
				outcomes[i].Error = errSkipped.Error()
			default:
				outcomes[i].Error = "rolled back: another file in the batch failed"
				outcomes[i].Written = true
			}
			outcomes[i].RolledBack = t.renamed && !failedRollback(rbErrs, t.abs)
		}
	}

	we := &WriteError{Outcomes: outcomes, Err: writeErr, Rollback: rbErrs}
	if len(rbErrs) > 0 {
		we.SessionDir = session.Dir
		log.Error("rollback incomplete, backups kept",
			zap.String("dir", session.Dir),
			zap.Error(we.RollbackFailures()))
	} else {
		if err := session.Discard(); err != nil {
			log.Warn("discarding backups", zap.Error(err))
		}
		log.Warn("batch rolled back", zap.Error(writeErr))
	}
	return outcomes, we
}

// pathError is a resolve failure for the mutation at index.
type pathError struct {
	index int
	path  string
	err   error
}

func (e *pathError) Error() string { return fmt.Sprintf("%s: %v", e.path, e.err) }
func (e *pathError) Unwrap() error { return e.err }

// plan resolves every mutation and collapses duplicate paths. The last
// mutation for a path supplies its content.
func (w *Writer) plan(batch []FileMutation) ([]*target, error) {
	byPath := make(map[string]*target, len(batch))
	var order []*target
	for i, m := range batch {
		abs, err := w.resolve(m.Path)
		if err != nil {
			return nil, &pathError{index: i, path: m.Path, err: err}
		}
		t, ok := byPath[abs]
		if !ok {
			t = &target{abs: abs}
			byPath[abs] = t
			order = append(order, t)
		}
		t.content = m.Content
		t.indexes = append(t.indexes, i)
	}
	return order, nil
}

// resolve maps p onto an absolute path inside the root. Existing ancestors
// are resolved through symlinks so a link cannot smuggle a write outside.
func (w *Writer) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("empty path")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)

	real, err := resolveExisting(p)
	if err != nil {
		return "", err
	}
	if !within(w.root, real) || real == w.root {
		return "", ErrOutsideRoot
	}
	if within(w.backupRoot, real) {
		return "", fmt.Errorf("%w: backup directory is reserved", ErrOutsideRoot)
	}
	return real, nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of p
// and re-attaches the missing remainder.
func resolveExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", fmt.Errorf("resolving %s: %w", cur, err)
			}
			for i := len(rest) - 1; i >= 0; i-- {
				real = filepath.Join(real, rest[i])
			}
			return real, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (w *Writer) capture(ctx context.Context, session *BackupSession, targets []*target) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for _, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := session.Capture(t.abs)
			return err
		})
	}
	return g.Wait()
}

func (w *Writer) write(ctx context.Context, targets []*target) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for _, t := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			t.started = true
			if err := w.writeOne(t); err != nil {
				t.err = err
				return fmt.Errorf("%s: %w", w.rel(t.abs), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// The caller's context may have been canceled before any write failed.
	return ctx.Err()
}

func (w *Writer) writeOne(t *target) error {
	dirs, err := mkdirAll(filepath.Dir(t.abs))
	t.dirs = dirs
	if err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(t.abs); err == nil {
		mode = info.Mode().Perm()
	}
	if err := writeAtomic(t.abs, []byte(t.content), mode); err != nil {
		return err
	}
	t.renamed = true

	info, err := os.Stat(t.abs)
	if err != nil {
		return fmt.Errorf("verifying write: %w", err)
	}
	if info.Size() != int64(len(t.content)) {
		return fmt.Errorf("verifying write: size %d, expected %d", info.Size(), len(t.content))
	}
	return nil
}

// mkdirAll creates dir and returns the directories it had to create,
// outermost first.
func mkdirAll(dir string) ([]string, error) {
	var missing []string
	for cur := dir; ; cur = filepath.Dir(cur) {
		if _, err := os.Stat(cur); err == nil {
			break
		}
		missing = append(missing, cur)
		if filepath.Dir(cur) == cur {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	created := make([]string, len(missing))
	for i, d := range missing {
		created[len(missing)-1-i] = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		// Report the ancestors that were made before the failure.
		n := 0
		for n < len(created) {
			if _, serr := os.Stat(created[n]); serr != nil {
				break
			}
			n++
		}
		return created[:n], err
	}
	return created, nil
}

// writeAtomic writes data to a temp sibling, syncs it and renames it over path.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(name, mode); err != nil {
		cleanup()
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// restoreFile puts a snapshot back in place. Tests replace it.
var restoreFile = writeAtomic

// rollback restores every path whose new content landed. A write that failed
// before its rename left the original untouched. Failures are collected,
// never retried.
func (w *Writer) rollback(session *BackupSession, targets []*target) []*RollbackError {
	var errs []*RollbackError
	for _, t := range targets {
		if !t.renamed {
			continue
		}
		rec, ok := session.Record(t.abs)
		if !ok {
			continue
		}
		if rec.Existed {
			if err := restoreFile(t.abs, rec.Snapshot, rec.Mode); err != nil {
				errs = append(errs, &RollbackError{Path: t.abs, Op: "restore", Err: err})
				w.logger.Error("restore failed", zap.String("path", t.abs), zap.Error(err))
			}
			continue
		}
		if err := os.Remove(t.abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, &RollbackError{Path: t.abs, Op: "remove", Err: err})
			w.logger.Error("remove failed", zap.String("path", t.abs), zap.Error(err))
		}
	}

	// Remove directories the batch created, deepest first. A directory that
	// still holds something is not empty and stays.
	var dirs []string
	for _, t := range targets {
		dirs = append(dirs, t.dirs...)
	}
	slices.SortFunc(dirs, func(a, b string) int { return len(b) - len(a) })
	for _, d := range slices.Compact(dirs) {
		_ = os.Remove(d)
	}
	return errs
}

func failedRollback(errs []*RollbackError, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}

func countExisting(session *BackupSession, targets []*target) int {
	n := 0
	for _, t := range targets {
		if rec, ok := session.Record(t.abs); ok && rec.Existed {
			n++
		}
	}
	return n
}

func (w *Writer) rel(abs string) string {
	if rel, err := filepath.Rel(w.root, abs); err == nil {
		return rel
	}
	return abs
}
