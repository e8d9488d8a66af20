package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/report"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search crawled pages by title and text",
		Long: `Search lists crawled pages whose title or visible text contains the
query, newest first. Matching ignores case for ASCII letters. Only the first
few kilobytes of each page's text are stored and searched.

Examples:
  darkcrawl search escrow
  darkcrawl search "hidden wiki" --limit 50
  darkcrawl search market -f json -o hits.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearchCmd,
	}
	cmd.Flags().IntP("limit", "l", database.DefaultSearchLimit, "Maximum pages to list")
	addReportFlags(cmd)
	return cmd
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hits, err := db.SearchPages(cmd.Context(), query, limit)
	if err != nil {
		return err
	}
	logger.Debug("search finished", "hits", len(hits))

	w, closeFn, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	if _, err := w.WriteSearch(&report.SearchResults{Query: query, Hits: hits}); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}
