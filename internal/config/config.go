// Package config loads and persists the hoofy-guard project configuration.
//
// The configuration lives in a single YAML file at the project root
// (.hoofy-guard.yaml). A missing file is not an error: every field has a
// default, so a bare checkout works without running `hoofy-guard init`.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFile is the configuration filename at the project root.
	ConfigFile = ".hoofy-guard.yaml"
	// StateDir holds everything hoofy-guard writes inside the working tree.
	StateDir = ".hoofy-guard"
	// DefaultBackupDir is where backup sessions are staged, relative to the root.
	DefaultBackupDir = StateDir + "/backups"
)

// Config holds the full hoofy-guard configuration.
type Config struct {
	// Writer settings.
	Writer WriterConfig `yaml:"writer"`

	// Validation settings.
	Validation ValidationConfig `yaml:"validation"`

	// Audit journal settings.
	Audit AuditConfig `yaml:"audit"`

	// Logging settings.
	Log LogConfig `yaml:"log"`
}

// WriterConfig configures the atomic file writer.
type WriterConfig struct {
	// BackupDir is relative to the project root.
	BackupDir string `yaml:"backup_dir"`
	// Parallelism bounds concurrent backup captures and writes within a batch.
	Parallelism int `yaml:"parallelism"`
}

// ValidationConfig configures the command runner and the command tables.
type ValidationConfig struct {
	Timeout        string `yaml:"timeout"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
	// Commands overrides or extends the default command per validation type.
	Commands map[string]string `yaml:"commands,omitempty"`
	// FixCommands overrides or extends the fix variant per validation type.
	FixCommands map[string]string `yaml:"fix_commands,omitempty"`
	// ConfigFlags overrides the config-file flag per validation type.
	ConfigFlags map[string]string `yaml:"config_flags,omitempty"`
}

// AuditConfig configures the run journal.
type AuditConfig struct {
	// Path to the SQLite database. Empty keeps the journal in memory for the
	// lifetime of the process.
	Path string `yaml:"path"`
	// Disabled turns the journal off entirely.
	Disabled bool `yaml:"disabled"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Writer: WriterConfig{
			BackupDir:   DefaultBackupDir,
			Parallelism: 4,
		},
		Validation: ValidationConfig{
			Timeout:        "5m",
			MaxOutputBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigPath returns the absolute path to the configuration file.
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigFile)
}

// BackupPath returns the absolute backup directory for a project root.
func (c *Config) BackupPath(projectRoot string) string {
	dir := c.Writer.BackupDir
	if dir == "" {
		dir = DefaultBackupDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectRoot, dir)
}

// ValidationTimeout returns the runner timeout as a duration.
func (c *Config) ValidationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Validation.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Writer.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("writer.parallelism must be >= 0, got %d", c.Writer.Parallelism))
	}
	if c.Validation.Timeout != "" {
		if d, err := time.ParseDuration(c.Validation.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("validation.timeout: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("validation.timeout must be positive, got %s", d))
		}
	}
	if c.Validation.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("validation.max_output_bytes must be >= 0"))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HOOFY_GUARD_TIMEOUT"); v != "" {
		c.Validation.Timeout = v
	}
	if v := os.Getenv("HOOFY_GUARD_MAX_OUTPUT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Validation.MaxOutputBytes = n
		}
	}
	if v := os.Getenv("HOOFY_GUARD_BACKUP_DIR"); v != "" {
		c.Writer.BackupDir = v
	}
	if v := os.Getenv("HOOFY_GUARD_AUDIT_DB"); v != "" {
		c.Audit.Path = v
	}
	if v := os.Getenv("HOOFY_GUARD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Store defines the persistence interface for the project configuration.
// Abstracted for testability.
type Store interface {
	Load(projectRoot string) (*Config, error)
	Save(projectRoot string, cfg *Config) error
}

// FileStore implements Store using the YAML file at the project root.
type FileStore struct{}

// NewFileStore creates a filesystem-backed config store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads the configuration, falling back to defaults when the file is
// absent. Environment overrides are applied last.
func (fs *FileStore) Load(projectRoot string) (*Config, error) {
	return LoadFile(ConfigPath(projectRoot))
}

// LoadFile reads the configuration at path. A missing file yields the
// defaults with environment overrides applied.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return cfg, nil
}

// Save writes the configuration to the project root.
func (fs *FileStore) Save(projectRoot string, cfg *Config) error {
	if err := os.MkdirAll(projectRoot, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(projectRoot), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFile, err)
	}
	return nil
}

// Exists reports whether a configuration file is present at the root.
func Exists(projectRoot string) bool {
	_, err := os.Stat(ConfigPath(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from dir looking for a .hoofy-guard.yaml or a
// .git directory. If neither is found, dir itself is returned.
func FindProjectRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}

	current := abs
	for {
		for _, marker := range []string{ConfigFile, ".git"} {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		current = parent
	}
}
