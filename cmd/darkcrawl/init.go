package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/config"
)

//go:embed templates/darkcrawl.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration file",
		Long: `Init writes a darkcrawl.yaml with every option at its default value and
a comment explaining it.

Examples:
  # Create darkcrawl.yaml in the current directory
  darkcrawl init

  # Create the file where darkcrawl looks for it when --config is not given
  darkcrawl init --xdg

  # Force overwrite an existing file
  darkcrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().Bool("xdg", false,
		"Write to the XDG config directory instead of --output")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	xdg, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	if xdg {
		outputPath = filepath.Join(config.XDGConfigDir(), config.DefaultConfigFile)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/darkcrawl.yaml")
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
	fmt.Fprintln(out, "\nOnly tor is enabled. Edit the file to:")
	fmt.Fprintln(out, "  - enable i2p, hyphanet or lokinet and point them at their proxies")
	fmt.Fprintln(out, "  - tune concurrency and politeness delays per network")
	fmt.Fprintln(out, "  - turn discovery strategies on or off")
	return nil
}
