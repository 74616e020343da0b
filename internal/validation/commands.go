package validation

import (
	"maps"
	"slices"
	"strings"

	"github.com/HendryAvila/hoofy-guard/internal/runner"
)

var defaultChecks = map[string]string{
	TypeTypeScript: "npx tsc --noEmit",
	TypeJavaScript: "node --check",
	TypeESLint:     "npx eslint",
	TypeTest:       "npm test",
	TypeBuild:      "npm run build",
	TypeFormat:     "npx prettier --check",
}

var defaultFixes = map[string]string{
	TypeESLint: "npx eslint --fix",
	TypeFormat: "npx prettier --write",
}

// Each tool spells its config flag differently.
var defaultConfigFlags = map[string]string{
	TypeTypeScript: "--project",
	TypeESLint:     "--config",
	TypeFormat:     "--config",
}

// Commands is the command table: the check command, the fix variant and the
// config-file flag for each validation type.
type Commands struct {
	checks      map[string]string
	fixes       map[string]string
	configFlags map[string]string
}

// DefaultCommands returns the built-in table.
func DefaultCommands() *Commands {
	return NewCommands(nil, nil, nil)
}

// NewCommands overlays the given entries on the built-in table. Empty values
// are ignored.
func NewCommands(checks, fixes, configFlags map[string]string) *Commands {
	c := &Commands{
		checks:      maps.Clone(defaultChecks),
		fixes:       maps.Clone(defaultFixes),
		configFlags: maps.Clone(defaultConfigFlags),
	}
	overlay(c.checks, checks)
	overlay(c.fixes, fixes)
	overlay(c.configFlags, configFlags)
	return c
}

func overlay(dst, src map[string]string) {
	for k, v := range src {
		if v = strings.TrimSpace(v); v != "" {
			dst[strings.ToLower(k)] = v
		}
	}
}

// Check returns the check command for typ.
func (c *Commands) Check(typ string) (string, bool) {
	cmd, ok := c.checks[typ]
	return cmd, ok
}

// Fix returns the fix variant for typ.
func (c *Commands) Fix(typ string) (string, bool) {
	cmd, ok := c.fixes[typ]
	return cmd, ok
}

// ConfigFlag returns the config-file flag for typ.
func (c *Commands) ConfigFlag(typ string) (string, bool) {
	flag, ok := c.configFlags[typ]
	return flag, ok
}

// Types lists every type that has a check command, sorted.
func (c *Commands) Types() []string {
	return slices.Sorted(maps.Keys(c.checks))
}

// Entry is one row of the table, as exposed to callers.
type Entry struct {
	Type       string `json:"type"`
	Check      string `json:"check"`
	Fix        string `json:"fix,omitempty"`
	ConfigFlag string `json:"config_flag,omitempty"`
}

// Entries returns the table rows sorted by type.
func (c *Commands) Entries() []Entry {
	types := c.Types()
	entries := make([]Entry, 0, len(types))
	for _, t := range types {
		entries = append(entries, Entry{
			Type:       t,
			Check:      c.checks[t],
			Fix:        c.fixes[t],
			ConfigFlag: c.configFlags[t],
		})
	}
	return entries
}

// decorate appends the config flag and the quoted file arguments to base.
func (c *Commands) decorate(typ, base, configFile string, files []string) string {
	parts := []string{base}
	if configFile != "" {
		if flag, ok := c.ConfigFlag(typ); ok {
			parts = append(parts, flag, runner.Quote(configFile))
		}
	}
	if len(files) > 0 {
		parts = append(parts, runner.QuoteArgs(files))
	}
	return strings.Join(parts, " ")
}
