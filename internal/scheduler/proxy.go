package scheduler

import (
	"context"
	"time"

	"github.com/nao1215/darkcrawl/internal/transport"
)

// waitForProxies probes the proxies of a pool until at least one answers,
// up to ProxyAttempts rounds. It returns the fetchers whose proxy answered
// in the first successful round, or nil when none ever did. Fetchers that
// cannot be probed count as reachable.
//
// Design decision: I2P needs several minutes to build tunnels and the
// Hyphanet gateway a few to start, so a pool waits for its daemons instead
// of dead-lettering its first candidates.
func (s *Scheduler) waitForProxies(ctx context.Context, p *pool) []transport.Fetcher {
	for attempt := 1; ; attempt++ {
		var up []transport.Fetcher
		for _, f := range p.fetchers {
			prober, ok := f.(Prober)
			if !ok {
				up = append(up, f)
				continue
			}
			status := prober.CheckConnection(ctx)
			if status == transport.ProxyStatusOK {
				up = append(up, f)
				continue
			}
			s.logger.Debug("proxy not reachable",
				"network", p.network,
				"attempt", attempt,
				"status", status.String(),
			)
		}
		if len(up) > 0 {
			s.logger.Info("proxy reachable", "network", p.network, "proxies", len(up))
			return up
		}
		if attempt >= s.cfg.ProxyAttempts {
			return nil
		}

		if attempt == 1 {
			s.logger.Info("waiting for network proxy", "network", p.network)
		}
		timer := time.NewTimer(s.cfg.ProxyRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
