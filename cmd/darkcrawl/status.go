package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/report"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl totals and per-network health",
		Long: `Status summarizes the crawl database: how many addresses were seen,
how many are pending, done and dead, and the same numbers per network.

Examples:
  darkcrawl status
  darkcrawl status -f markdown -o reports/status.md
  darkcrawl status -f json | jq .networks`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}
	addReportFlags(cmd)
	return cmd
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cmd, cfg)

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := buildStatus(cmd.Context(), db)
	if err != nil {
		return err
	}

	w, closeFn, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	if _, err := w.WriteStatus(status); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

// buildStatus queries everything the status report shows.
func buildStatus(ctx context.Context, db *database.CrawlDB) (*report.Status, error) {
	counts, err := db.Counts(ctx)
	if err != nil {
		return nil, err
	}
	health, err := db.NetworkHealth(ctx)
	if err != nil {
		return nil, err
	}
	last, err := db.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	return &report.Status{
		Database:    db.Path(),
		GeneratedAt: time.Now(),
		Counts:      counts,
		Networks:    health,
		LastRun:     last,
	}, nil
}
