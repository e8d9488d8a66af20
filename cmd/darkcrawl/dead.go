package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
	"github.com/nao1215/darkcrawl/internal/report"
)

var errClearNeedsNetwork = errors.New("--clear requires --network")

// NewDeadCmd creates the dead command.
func NewDeadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List or clear dead-lettered addresses",
		Long: `Dead lists addresses that will not be fetched again: those that failed
permanently (not found, invalid key) and those that ran out of retries.

--clear deletes the dead letters of one network and returns their addresses
to the queue with a fresh retry budget, e.g. after an I2P router outage.

Examples:
  darkcrawl dead
  darkcrawl dead --network i2p --reason retries_exhausted --limit 50
  darkcrawl dead --network i2p --clear`,
		Args: cobra.NoArgs,
		RunE: runDeadCmd,
	}
	cmd.Flags().StringP("network", "n", "", "Only this network (tor, i2p, hyphanet, lokinet)")
	cmd.Flags().StringP("reason", "r", "", "Only this reason (permanent, retries_exhausted)")
	cmd.Flags().IntP("limit", "l", 100, "Maximum entries to list (0 for all)")
	cmd.Flags().Bool("clear", false, "Clear the dead letters of --network")
	addReportFlags(cmd)
	return cmd
}

func runDeadCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	filter, err := deadFilter(cmd)
	if err != nil {
		return err
	}
	clearDead, err := cmd.Flags().GetBool("clear")
	if err != nil {
		return err
	}
	if clearDead && filter.Network == nil {
		return errClearNeedsNetwork
	}

	db, err := openExistingDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if clearDead {
		n, err := db.ClearDead(cmd.Context(), *filter.Network)
		if err != nil {
			return err
		}
		logger.Info("dead letters cleared", "network", filter.Network.String(), "count", n)
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d dead letter(s) of %s\n", n, filter.Network)
		return nil
	}

	entries, err := db.ListDead(cmd.Context(), filter)
	if err != nil {
		return err
	}

	w, closeFn, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	if _, err := w.WriteDead(&report.DeadLetters{Filter: describeFilter(filter), Entries: entries}); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func deadFilter(cmd *cobra.Command) (database.DeadFilter, error) {
	var filter database.DeadFilter

	name, err := cmd.Flags().GetString("network")
	if err != nil {
		return filter, err
	}
	if name != "" {
		network, err := model.ParseNetwork(name)
		if err != nil {
			return filter, err
		}
		filter.Network = &network
	}

	reason, err := cmd.Flags().GetString("reason")
	if err != nil {
		return filter, err
	}
	switch model.DeadReason(reason) {
	case "", model.DeadPermanent, model.DeadRetriesExhausted:
		filter.Reason = model.DeadReason(reason)
	default:
		return filter, fmt.Errorf("unknown reason %q (want %s or %s)", reason, model.DeadPermanent, model.DeadRetriesExhausted)
	}

	if filter.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func describeFilter(f database.DeadFilter) string {
	var parts []string
	if f.Network != nil {
		parts = append(parts, "network="+f.Network.String())
	}
	if f.Reason != "" {
		parts = append(parts, "reason="+string(f.Reason))
	}
	return strings.Join(parts, ", ")
}
