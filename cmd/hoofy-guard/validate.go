package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/hoofy-guard/internal/params"
	"github.com/HendryAvila/hoofy-guard/internal/report"
	guardserver "github.com/HendryAvila/hoofy-guard/internal/server"
	"github.com/HendryAvila/hoofy-guard/internal/validation"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <type>",
	Short: "Run one validation and print its report",
	Long: `Run the command registered for <type> (typescript, javascript, eslint, test,
build, format, or a type from .hoofy-guard.yaml) and print the diagnostics.

Exits 1 when the validation fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.String("command", "", "command to run instead of the registered one")
	f.StringSlice("files", nil, "files to pass to the command")
	f.Bool("fix", false, "run the fix variant")
	f.String("fix-mode", validation.FixAfter, "after: fix after a failed check; inline: run the fix variant instead")
	f.String("config-file", "", "tool configuration file")
	f.String("working-dir", "", "directory to run in, relative to the root")
	f.Int("timeout", 0, "timeout in seconds (default: the configured timeout)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	f := cmd.Flags()
	command, _ := f.GetString("command")
	files, _ := f.GetStringSlice("files")
	fix, _ := f.GetBool("fix")
	fixMode, _ := f.GetString("fix-mode")
	configFile, _ := f.GetString("config-file")
	workingDir, _ := f.GetString("working-dir")
	timeout, _ := f.GetInt("timeout")

	// Flags are checked by the same rules as tool arguments.
	fileArgs := make([]any, len(files))
	for i, p := range files {
		fileArgs[i] = p
	}
	vr, err := params.Normalize(map[string]any{
		"type":            args[0],
		"command":         command,
		"files":           fileArgs,
		"fix":             fix,
		"fix_mode":        fixMode,
		"config_file":     configFile,
		"working_dir":     workingDir,
		"timeout_seconds": timeout,
	}, params.Validation)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	c, cleanup, err := guardserver.NewComponents(e.root, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res := c.Validator.Validate(cmd.Context(), vr.Type, validation.Options{
		Command:    vr.Command,
		Files:      vr.Files,
		Fix:        vr.Fix,
		FixMode:    vr.FixMode,
		ConfigFile: vr.ConfigFile,
		WorkingDir: vr.WorkingDir,
		Timeout:    secondsDuration(vr.TimeoutSeconds),
	})

	fmt.Fprint(cmd.OutOrStdout(), colorize(report.Format(res)))
	if !res.Success {
		return errFailed
	}
	return nil
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

// colorize highlights verdict words in a report. color disables itself when
// stdout is not a terminal or NO_COLOR is set.
func colorize(text string) string {
	return strings.NewReplacer(
		"— "+report.Passed, "— "+passColor.Sprint(report.Passed),
		"— "+report.Failed, "— "+failColor.Sprint(report.Failed),
		"— COMMITTED", "— "+passColor.Sprint("COMMITTED"),
		"— ROLLED BACK", "— "+failColor.Sprint("ROLLED BACK"),
	).Replace(text)
}
