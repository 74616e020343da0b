package writer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// BackupRecord is the pre-batch state of one path.
type BackupRecord struct {
	Path       string      `json:"path"`
	Existed    bool        `json:"existed"`
	Snapshot   []byte      `json:"-"`
	Mode       fs.FileMode `json:"mode"`
	BackupFile string      `json:"backup_file,omitempty"`
}

// BackupSession owns the backups of a single batch. Snapshots are kept in
// memory for rollback and copied aside under Dir so that a failed rollback
// leaves the originals recoverable.
type BackupSession struct {
	ID  string
	Dir string

	mu      sync.Mutex
	records map[string]*BackupRecord
	names   map[string]int
	created bool
}

// NewBackupSession creates a session rooted under backupRoot. Nothing is
// written to disk until the first existing file is captured.
func NewBackupSession(backupRoot string, now time.Time) *BackupSession {
	id := fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	return &BackupSession{
		ID:      id,
		Dir:     filepath.Join(backupRoot, id),
		records: make(map[string]*BackupRecord),
		names:   make(map[string]int),
	}
}

// Capture snapshots path. Calling it twice for the same path is a no-op.
func (s *BackupSession) Capture(path string) (*BackupRecord, error) {
	s.mu.Lock()
	if rec, ok := s.records[path]; ok {
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	rec := &BackupRecord{Path: path}
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		// Nothing to snapshot; rollback removes whatever the batch creates.
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%s is a directory", path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rec.Existed = true
		rec.Snapshot = data
		rec.Mode = info.Mode().Perm()

		name, err := s.reserve(filepath.Base(path))
		if err != nil {
			return nil, err
		}
		rec.BackupFile = filepath.Join(s.Dir, name)
		if err := os.WriteFile(rec.BackupFile, data, 0o600); err != nil {
			return nil, fmt.Errorf("copying %s aside: %w", path, err)
		}
	}

	s.mu.Lock()
	s.records[path] = rec
	s.mu.Unlock()
	return rec, nil
}

// reserve returns a unique file name in the session directory, creating the
// directory on first use. Colliding basenames get an NNN- prefix.
func (s *BackupSession) reserve(base string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		if err := os.MkdirAll(s.Dir, 0o700); err != nil {
			return "", fmt.Errorf("creating backup session %s: %w", s.ID, err)
		}
		s.created = true
	}

	n := s.names[base]
	s.names[base] = n + 1
	if n == 0 {
		return base, nil
	}
	return fmt.Sprintf("%03d-%s", n, base), nil
}

// Record returns the captured record for path.
func (s *BackupSession) Record(path string) (*BackupRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Len is the number of captured paths.
func (s *BackupSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Discard removes the session directory and, if it is left empty, the
// backup root above it.
func (s *BackupSession) Discard() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("removing backup session %s: %w", s.ID, err)
	}
	_ = os.Remove(filepath.Dir(s.Dir))
	return nil
}
