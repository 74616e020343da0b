// Package audit keeps a journal of file batches and validation runs.
//
// The journal is a SQLite database. An empty path keeps it in memory for the
// lifetime of the process, which is enough for guard_history within one
// server session; a file path makes it survive restarts.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Entry kinds.
const (
	KindBatch      = "batch"
	KindValidation = "validation"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// ─── Types ───────────────────────────────────────────────────────────────────

// Batch is one file batch as recorded in the journal.
type Batch struct {
	ID         string   `json:"id"`
	Files      []string `json:"files"`
	Succeeded  int      `json:"succeeded"`
	RolledBack bool     `json:"rolled_back"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// Validation is one validation run as recorded in the journal.
type Validation struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	FixApplied bool   `json:"fix_applied"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// Entry is a row of either kind, newest first in Recent.
type Entry struct {
	Kind       string      `json:"kind"`
	Batch      *Batch      `json:"batch,omitempty"`
	Validation *Validation `json:"validation,omitempty"`
}

// CreatedAt returns the timestamp of whichever record the entry holds.
func (e Entry) CreatedAt() string {
	if e.Batch != nil {
		return e.Batch.CreatedAt
	}
	if e.Validation != nil {
		return e.Validation.CreatedAt
	}
	return ""
}

// ─── Journal ─────────────────────────────────────────────────────────────────

// Journal is the SQLite-backed run journal. It is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens the journal at path, creating the file and its directory when
// needed. An empty path opens an in-memory journal.
func Open(path string) (*Journal, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("audit: create data dir: %w", err)
		}
		dsn = path
	}

	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: pragma %q: %w", p, err)
		}
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS batches (
			id          TEXT    PRIMARY KEY,
			files       TEXT    NOT NULL,
			file_count  INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			rolled_back INTEGER NOT NULL DEFAULT 0,
			error       TEXT,
			created_at  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at DESC);

		CREATE TABLE IF NOT EXISTS validations (
			id          TEXT    PRIMARY KEY,
			type        TEXT    NOT NULL,
			command     TEXT    NOT NULL,
			success     INTEGER NOT NULL,
			errors      INTEGER NOT NULL DEFAULT 0,
			warnings    INTEGER NOT NULL DEFAULT 0,
			fix_applied INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_validations_type    ON validations(type);
		CREATE INDEX IF NOT EXISTS idx_validations_created ON validations(created_at DESC);
	`
	_, err := j.db.Exec(schema)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// RecordBatch stores a file batch and returns its id. Files are stored in
// submission order.
func (j *Journal) RecordBatch(b Batch) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	b.ID = newID(b.ID)
	if b.CreatedAt == "" {
		b.CreatedAt = j.timestamp()
	}

	_, err := j.db.Exec(
		`INSERT INTO batches (id, files, file_count, succeeded, rolled_back, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, strings.Join(b.Files, "\n"), len(b.Files), b.Succeeded, b.RolledBack, nullableString(b.Error), b.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("audit: record batch: %w", err)
	}
	return b.ID, nil
}

// RecordValidation stores a validation run and returns its id.
func (j *Journal) RecordValidation(v Validation) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	v.ID = newID(v.ID)
	if v.CreatedAt == "" {
		v.CreatedAt = j.timestamp()
	}

	_, err := j.db.Exec(
		`INSERT INTO validations (id, type, command, success, errors, warnings, fix_applied, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Type, v.Command, v.Success, v.Errors, v.Warnings, v.FixApplied, v.DurationMs, v.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("audit: record validation: %w", err)
	}
	return v.ID, nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Recent returns up to limit entries, newest first. kind filters to batches or
// validations; an empty kind returns both, merged by time.
func (j *Journal) Recent(kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var entries []Entry
	switch kind {
	case "", KindBatch, KindValidation:
	default:
		return nil, fmt.Errorf("audit: unknown kind %q (want %q or %q)", kind, KindBatch, KindValidation)
	}

	if kind == "" || kind == KindBatch {
		batches, err := j.recentBatches(limit)
		if err != nil {
			return nil, err
		}
		for i := range batches {
			entries = append(entries, Entry{Kind: KindBatch, Batch: &batches[i]})
		}
	}
	if kind == "" || kind == KindValidation {
		runs, err := j.recentValidations(limit)
		if err != nil {
			return nil, err
		}
		for i := range runs {
			entries = append(entries, Entry{Kind: KindValidation, Validation: &runs[i]})
		}
	}

	if kind == "" {
		sortNewestFirst(entries)
		if len(entries) > limit {
			entries = entries[:limit]
		}
	}
	return entries, nil
}

func (j *Journal) recentBatches(limit int) ([]Batch, error) {
	rows, err := j.db.Query(
		`SELECT id, files, succeeded, rolled_back, error, created_at
		 FROM batches ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b     Batch
			files string
			msg   sql.NullString
		)
		if err := rows.Scan(&b.ID, &files, &b.Succeeded, &b.RolledBack, &msg, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan batch: %w", err)
		}
		if files != "" {
			b.Files = strings.Split(files, "\n")
		}
		b.Error = msg.String
		out = append(out, b)
	}
	return out, rows.Err()
}

func (j *Journal) recentValidations(limit int) ([]Validation, error) {
	rows, err := j.db.Query(
		`SELECT id, type, command, success, errors, warnings, fix_applied, duration_ms, created_at
		 FROM validations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query validations: %w", err)
	}
	defer rows.Close()

	var out []Validation
	for rows.Next() {
		var v Validation
		if err := rows.Scan(&v.ID, &v.Type, &v.Command, &v.Success, &v.Errors, &v.Warnings, &v.FixApplied, &v.DurationMs, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan validation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

func (j *Journal) timestamp() string {
	return j.now().UTC().Format(timestampLayout)
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sortNewestFirst orders entries by timestamp, keeping the relative order of
// entries with equal timestamps.
func sortNewestFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return strings.Compare(b.CreatedAt(), a.CreatedAt())
	})
}
