// hoofy-guard: transactional file writes and validation for AI coding tools.
//
// An MCP server that lets any AI coding tool (Claude Code, OpenCode, Gemini
// CLI, Codex, Cursor, VS Code Copilot) write several files as one atomic
// batch and validate the result with the project's own type checker, linter,
// tests, build and formatter.
//
// Usage:
//
//	hoofy-guard serve              # Start MCP server (stdio transport)
//	hoofy-guard write batch.json   # Apply a file batch from a file or stdin
//	hoofy-guard validate eslint    # Run one validation and print the report
//	hoofy-guard init               # Write a default .hoofy-guard.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/hoofy-guard/internal/config"
	"github.com/HendryAvila/hoofy-guard/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errFailed makes the process exit 1 without printing anything more: the
// command already printed its report.
var errFailed = errors.New("failed")

var rootCmd = &cobra.Command{
	Use:   "hoofy-guard",
	Short: "Transactional file writes and validation MCP server",
	Long: `hoofy-guard writes batches of files all-or-nothing and runs validation
commands (tsc, eslint, tests, build, prettier), reporting their diagnostics.

Add it to your AI tool's MCP config:

  {
    "mcpServers": {
      "hoofy-guard": {
        "command": "hoofy-guard",
        "args": ["serve"]
      }
    }
  }`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("root", "", "project root (default: nearest directory with .hoofy-guard.yaml or .git)")
	rootCmd.PersistentFlags().String("config", "", "configuration file (default: <root>/"+config.ConfigFile+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging on stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// env is what every subcommand needs: the project root, its configuration
// and a logger.
type env struct {
	root   string
	cfg    *config.Config
	logger *zap.Logger
}

// setup resolves the persistent flags into an env.
func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()
	rootFlag, _ := flags.GetString("root")
	configFlag, _ := flags.GetString("config")
	verbose, _ := flags.GetBool("verbose")

	root := rootFlag
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		if root, err = config.FindProjectRoot(wd); err != nil {
			return nil, err
		}
	}

	path := configFlag
	if path == "" {
		path = config.ConfigPath(root)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return &env{root: root, cfg: cfg, logger: logger}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
}
