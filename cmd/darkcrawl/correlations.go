package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
	"github.com/nao1215/darkcrawl/internal/report"
)

// NewCorrelationsCmd creates the correlations command.
func NewCorrelationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlations [domain]",
		Short: "Show domains that share fingerprints",
		Long: `Correlations shows facts observed on more than one domain: analytics
IDs, favicon and error page hashes, server headers, PGP keys, EXIF camera
serials and more. Domains sharing such a fact are likely run by the same
operator, even across networks.

Without arguments, every cluster of domains sharing a fact is listed,
largest first. With a domain (or any address of it), the facts that domain
shares with others are listed. --type and --value look up the domains of one
fact.

Examples:
  darkcrawl correlations
  darkcrawl correlations --type google_analytics_ua --limit 20
  darkcrawl correlations --type favicon_hash --value 3f2a...
  darkcrawl correlations forum.i2p`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCorrelationsCmd,
	}
	cmd.Flags().StringP("type", "t", "", "Only this fact type (e.g. favicon_hash, server_header)")
	cmd.Flags().String("value", "", "With --type, list the domains of this fact value")
	cmd.Flags().IntP("limit", "l", 50, "Maximum clusters to list (0 for all)")
	addReportFlags(cmd)
	return cmd
}

func runCorrelationsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cmd, cfg)

	typ, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	value, err := cmd.Flags().GetString("value")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var result *report.Correlations
	switch {
	case len(args) == 1:
		result, err = domainCorrelations(cmd, db, args[0])
	case typ != "" && value != "":
		var domains []string
		domains, err = db.SharedCorrelations(cmd.Context(), model.CorrelationType(typ), value)
		result = &report.Correlations{}
		if len(domains) > 1 {
			result.Clusters = []database.Cluster{{Type: model.CorrelationType(typ), Value: value, Domains: domains}}
		}
	default:
		var clusters []database.Cluster
		clusters, err = db.Clusters(cmd.Context(), model.CorrelationType(typ), limit)
		result = &report.Correlations{Clusters: clusters}
	}
	if err != nil {
		return err
	}

	w, closeFn, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	if _, err := w.WriteCorrelations(result); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

// domainCorrelations accepts a bare domain or any address on it.
func domainCorrelations(cmd *cobra.Command, db *database.CrawlDB, arg string) (*report.Correlations, error) {
	domain := arg
	if network, canonical, _, err := classify.SniffAndClassify(arg); err == nil {
		domain = classify.Domain(network, canonical)
	}
	shared, err := db.DomainsSharing(cmd.Context(), domain)
	if err != nil {
		return nil, err
	}
	return &report.Correlations{Domain: domain, Shared: shared}, nil
}
