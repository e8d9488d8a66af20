package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for darkcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "darkcrawl",
		Short: "Multi-network crawler for anonymity networks",
		Long: `darkcrawl crawls Tor, I2P, Hyphanet and Lokinet through their local
proxies. It follows links across networks, mines page sources for addresses
of other networks and records shared fingerprints (analytics IDs, favicons,
server headers, PGP keys) that tie domains to the same operator.

Crawl state lives in a SQLite database, so an interrupted crawl resumes where
it stopped.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: ./darkcrawl.yaml or the XDG config directory)")
	cmd.PersistentFlags().String("data-dir", "",
		"Database directory (overrides general.data_dir)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewDeadCmd())
	cmd.AddCommand(NewCorrelationsCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
