package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/frontier"
	"github.com/nao1215/darkcrawl/internal/model"
)

// RestoreStats summarizes what Restore loaded.
type RestoreStats struct {
	// Cleared is the number of dead letters deleted before loading.
	Cleared int64
	// Seen is the number of addresses marked seen.
	Seen int
	// Dead is the number of dead addresses.
	Dead int
	// Pending is the number of candidates queued again.
	Pending int
	// Skipped is the number of pending candidates of networks that are not
	// scheduled this run. They stay pending in the store.
	Skipped int
}

// Restore loads the state of earlier runs. The dead letters of the clearDead
// networks are deleted first, so their addresses come back as pending.
// Every stored address is marked seen, dead ones included, so nothing is
// admitted twice and dead addresses are never admitted again. Pending
// candidates are queued with their stored priority and retry count.
func (s *Scheduler) Restore(ctx context.Context, clearDead ...model.Network) (RestoreStats, error) {
	var stats RestoreStats
	for _, network := range clearDead {
		n, err := s.deps.Store.ClearDead(ctx, network)
		if err != nil {
			return stats, fmt.Errorf("clear dead letters of %s: %w", network, err)
		}
		if n > 0 {
			s.logger.Info("dead letters cleared", "network", network, "count", n)
		}
		stats.Cleared += n
	}

	seen, err := s.deps.Store.LoadSeen(ctx)
	if err != nil {
		return stats, fmt.Errorf("load seen addresses: %w", err)
	}
	s.deps.Seen.MarkSeen(seen...)
	stats.Seen = len(seen)

	dead, err := s.deps.Store.LoadDead(ctx)
	if err != nil {
		return stats, fmt.Errorf("load dead letters: %w", err)
	}
	s.deps.Seen.MarkSeen(dead...)
	for _, addr := range dead {
		s.dead[addr] = struct{}{}
	}
	stats.Dead = len(dead)

	pending, err := s.deps.Store.LoadPending(ctx)
	if err != nil {
		return stats, fmt.Errorf("load pending addresses: %w", err)
	}
	for _, c := range pending {
		err := s.deps.Frontier.Restore(c)
		if errors.Is(err, frontier.ErrNotSchedulable) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("restore %s: %w", c.CanonicalAddress, err)
		}
		s.restored[c.CanonicalAddress] = struct{}{}
		stats.Pending++
	}

	s.logger.Info("crawl state restored",
		"seen", stats.Seen,
		"dead", stats.Dead,
		"pending", stats.Pending,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// Seed queues operator supplied addresses at depth zero and stores them.
// Every seed is checked before any is queued; a seed whose network cannot be
// recognized or is not scheduled fails the whole call. Seeds already queued
// by Restore and dead seeds are skipped. It returns the number of seeds
// queued.
func (s *Scheduler) Seed(ctx context.Context, raws []string) (int, error) {
	type seed struct {
		raw       string
		network   model.Network
		canonical string
	}

	seeds := make([]seed, 0, len(raws))
	for _, raw := range raws {
		network, canonical, _, err := classify.SniffAndClassify(raw)
		if err != nil {
			return 0, fmt.Errorf("seed %q: %w", raw, ErrUnknownSeed)
		}
		if !s.deps.Frontier.Enabled(network) {
			return 0, fmt.Errorf("seed %q: %s: %w", raw, network, ErrNetworkDisabled)
		}
		seeds = append(seeds, seed{raw: raw, network: network, canonical: canonical})
	}

	var queued int
	for _, sd := range seeds {
		if _, ok := s.restored[sd.canonical]; ok {
			continue
		}
		if _, ok := s.dead[sd.canonical]; ok {
			s.logger.Info("seed is dead-lettered, skipping", "address", sd.canonical)
			continue
		}

		c, err := s.deps.Frontier.Seed(sd.network, sd.raw)
		if err != nil {
			return queued, err
		}
		if _, err := s.deps.Store.TryInsertUnique(ctx, c); err != nil {
			return queued, fmt.Errorf("store seed %s: %w", c.CanonicalAddress, err)
		}
		s.restored[c.CanonicalAddress] = struct{}{}
		queued++
	}
	return queued, nil
}
