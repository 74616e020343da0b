package main

import (
	"fmt"

	guardserver "github.com/HendryAvila/hoofy-guard/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio transport)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	s, cleanup, err := guardserver.New(e.root, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Logs go to stderr; stdout carries the MCP protocol.
	e.logger.Info("serving on stdio", zap.String("root", e.root))

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s) }()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
		e.logger.Info("shutting down")
		return nil
	}
}
