package main

import (
	"fmt"

	"github.com/HendryAvila/hoofy-guard/internal/config"
	guardserver "github.com/HendryAvila/hoofy-guard/internal/server"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default " + config.ConfigFile + " at the project root",
	Long: `Write a default ` + config.ConfigFile + ` at the project root, listing the
built-in validation commands so they can be edited. Refuses to overwrite an
existing file unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hoofy-guard v%s\n", guardserver.Version)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	force, _ := cmd.Flags().GetBool("force")
	if config.Exists(e.root) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", config.ConfigPath(e.root))
	}

	// Spell out the built-in tables so the file documents what runs.
	cfg := config.Default()
	c, cleanup, err := guardserver.NewComponents(e.root, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg.Validation.Commands = make(map[string]string)
	cfg.Validation.FixCommands = make(map[string]string)
	cfg.Validation.ConfigFlags = make(map[string]string)
	for _, entry := range c.Validator.Commands().Entries() {
		cfg.Validation.Commands[entry.Type] = entry.Check
		if entry.Fix != "" {
			cfg.Validation.FixCommands[entry.Type] = entry.Fix
		}
		if entry.ConfigFlag != "" {
			cfg.Validation.ConfigFlags[entry.Type] = entry.ConfigFlag
		}
	}

	if err := config.NewFileStore().Save(e.root, cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", config.ConfigPath(e.root))
	fmt.Fprintf(out, "Backups are staged in %s\n", cfg.BackupPath(e.root))
	return nil
}
