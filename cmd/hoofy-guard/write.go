package main

import (
	"fmt"
	"io"
	"os"

	"github.com/HendryAvila/hoofy-guard/internal/params"
	"github.com/HendryAvila/hoofy-guard/internal/report"
	guardserver "github.com/HendryAvila/hoofy-guard/internal/server"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write [batch.json|-]",
	Short: "Apply a file batch all-or-nothing",
	Long: `Apply a file batch read from a JSON file, or from stdin when the argument is
omitted or "-". The batch takes the same forms as the guard_write_files tool:

  [{"path": "src/a.ts", "content": "..."}, ...]
  {"files": [{"path": "src/a.ts", "content": "..."}]}

Exits 1 when the batch is rolled back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	raw, err := readBatch(cmd, args)
	if err != nil {
		return err
	}

	// The JSON text goes through the same normalization as tool arguments.
	batch, err := params.Normalize(string(raw), params.Files)
	if err != nil {
		return fmt.Errorf("invalid file batch: %w", err)
	}

	c, cleanup, err := guardserver.NewComponents(e.root, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes, err := c.Writer.ApplyBatch(cmd.Context(), batch.Files)
	fmt.Fprint(cmd.OutOrStdout(), colorize(report.FormatBatch(outcomes, err)))
	if err != nil {
		return errFailed
	}
	return nil
}

func readBatch(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading batch from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	return data, nil
}
