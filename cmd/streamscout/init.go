package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/streamscout/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/streamscout.yaml
var configTemplate embed.FS

const templatePath = "templates/streamscout.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .streamscout configuration file",
		Long: `Init writes an annotated .streamscout configuration file to the current directory.

The generated file documents the listing site profile: the grid control,
the watch button selector and attribute, channel name prefixes, the default
category, the playlist group label and extra blocklist entries.

Examples:
  # Create .streamscout in the current directory
  streamscout init

  # Create the file at a specific path
  streamscout init -o ~/.config/streamscout/config.yaml

  # Overwrite an existing file
  streamscout init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd writes the configuration template.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	// Check if file already exists
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to describe listing sites, for example:")
	fmt.Fprintln(out, "  - the control text that opens the channel grid")
	fmt.Fprintln(out, "  - the selector and attribute of watch buttons")
	fmt.Fprintln(out, "  - a default category and playlist group label")
	return nil
}
