package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/darkcrawl/internal/correlation"
	"github.com/nao1215/darkcrawl/internal/frontier"
	"github.com/nao1215/darkcrawl/internal/metrics"
	"github.com/nao1215/darkcrawl/internal/model"
	"github.com/nao1215/darkcrawl/internal/pipeline"
	"github.com/nao1215/darkcrawl/internal/transport"
)

// Defaults of the proxy startup probe.
const (
	DefaultProxyAttempts      = 40
	DefaultProxyRetryInterval = 15 * time.Second
)

// Store is the durable side of the crawl queue. *database.CrawlDB
// implements it.
type Store interface {
	TryInsertUnique(ctx context.Context, c model.Candidate) (bool, error)
	MarkRetry(ctx context.Context, canonical string, retryCount int) error
	RecordDead(ctx context.Context, entry model.DeadEntry) (bool, error)
	RecordCorrelations(ctx context.Context, facts []model.CorrelationFact) (int64, error)
	LoadSeen(ctx context.Context) ([]string, error)
	LoadDead(ctx context.Context) ([]string, error)
	LoadPending(ctx context.Context) ([]model.Candidate, error)
	ClearDead(ctx context.Context, network model.Network) (int64, error)
}

// Processor handles a fetched page. *pipeline.Pipeline implements it.
type Processor interface {
	Execute(ctx context.Context, job *pipeline.Job) error
}

// Marker records addresses as seen. *dedup.Index implements it.
type Marker interface {
	MarkSeen(addresses ...string)
}

// Prober is implemented by fetchers that can check their proxy.
// *transport.Client implements it.
type Prober interface {
	CheckConnection(ctx context.Context) transport.ProxyStatus
}

// NetworkConfig is the pool configuration of one network.
type NetworkConfig struct {
	// Concurrency is the number of fetches in flight at once.
	Concurrency int

	// MinDelay is the minimum time between two fetches of one domain.
	MinDelay time.Duration

	// MaxRetries is the number of retries of a transiently failing
	// candidate before it is dead-lettered.
	MaxRetries int

	// WaitForProxy probes the fetchers' proxies before the pool starts.
	WaitForProxy bool

	// Fetchers are used round-robin, one per proxy endpoint.
	Fetchers []transport.Fetcher
}

// Config holds the scheduler configuration.
type Config struct {
	// Networks are the networks to run pools for.
	Networks map[model.Network]NetworkConfig

	// ProxyAttempts is how many times an unreachable proxy is probed
	// before its pool gives up.
	ProxyAttempts int

	// ProxyRetryInterval is the wait between two proxy probes.
	ProxyRetryInterval time.Duration

	// StopWhenIdle ends Run once the frontier has nothing left to do.
	StopWhenIdle bool
}

// Deps are the components the scheduler drives.
type Deps struct {
	Frontier *frontier.Frontier
	Seen     Marker
	Store    Store
	Pipeline Processor
	Metrics  *metrics.Metrics
}

// Scheduler dispatches frontier candidates to fetchers.
//
// Design decision: The frontier is the only queue. A pool's dispatcher
// blocks in Take and hands each candidate to a goroutine of an errgroup
// limited to the pool's concurrency, so a network with a deep backlog never
// holds workers another network could use.
type Scheduler struct {
	cfg   Config
	pools []*pool
	deps  Deps

	restored map[string]struct{}
	dead     map[string]struct{}

	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// pool is the per-network state of the scheduler.
type pool struct {
	network     model.Network
	concurrency int
	maxRetries  int
	waitProxy   bool
	fetchers    []transport.Fetcher
	next        atomic.Uint64
	politeness  *politeness
}

// fetcher returns the next fetcher in round-robin order.
func (p *pool) fetcher() transport.Fetcher {
	i := p.next.Add(1) - 1
	return p.fetchers[i%uint64(len(p.fetchers))]
}

// New creates a Scheduler. Every configured network must be enabled in the
// frontier and have at least one fetcher.
func New(cfg Config, deps Deps, opts ...Option) (*Scheduler, error) {
	if len(cfg.Networks) == 0 {
		return nil, ErrNoNetworks
	}
	if cfg.ProxyAttempts <= 0 {
		cfg.ProxyAttempts = DefaultProxyAttempts
	}
	if cfg.ProxyRetryInterval <= 0 {
		cfg.ProxyRetryInterval = DefaultProxyRetryInterval
	}

	s := &Scheduler{
		cfg:      cfg,
		deps:     deps,
		restored: make(map[string]struct{}),
		dead:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	for network, nc := range cfg.Networks {
		if !deps.Frontier.Enabled(network) {
			return nil, fmt.Errorf("%s: %w", network, ErrNetworkDisabled)
		}
		if len(nc.Fetchers) == 0 {
			return nil, fmt.Errorf("%s: %w", network, ErrNoFetchers)
		}
		concurrency := nc.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		s.pools = append(s.pools, &pool{
			network:     network,
			concurrency: concurrency,
			maxRetries:  max(nc.MaxRetries, 0),
			waitProxy:   nc.WaitForProxy,
			fetchers:    nc.Fetchers,
			politeness:  newPoliteness(nc.MinDelay),
		})
	}
	sort.Slice(s.pools, func(i, j int) bool { return s.pools[i].network < s.pools[j].network })

	return s, nil
}

// Networks returns the scheduled networks.
func (s *Scheduler) Networks() []model.Network {
	networks := make([]model.Network, len(s.pools))
	for i, p := range s.pools {
		networks[i] = p.network
	}
	return networks
}

// Run starts every pool and blocks until they have all stopped. Pools stop
// when ctx is canceled, when the frontier is closed, or when their proxies
// never come up. A pool whose proxies never come up disables its network in
// the frontier, so the rest of the run neither admits nor waits for it.
// In-flight fetches are finished before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if s.cfg.StopWhenIdle {
		go func() {
			if err := s.deps.Frontier.WaitIdle(watchCtx); err == nil {
				s.logger.Info("frontier drained, stopping")
				s.deps.Frontier.Close()
			}
		}()
	}

	g := new(errgroup.Group)
	for _, p := range s.pools {
		g.Go(func() error {
			return s.runPool(ctx, p)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runPool(ctx context.Context, p *pool) error {
	if p.waitProxy {
		up := s.waitForProxies(ctx, p)
		if len(up) == 0 {
			// The network's candidates stay pending in the store for the
			// next run. The other pools carry on.
			dropped := s.deps.Frontier.Disable(p.network)
			s.deps.Metrics.Pending(p.network, 0)
			s.logger.Warn("no proxy reachable, pool exits",
				"network", p.network,
				"pending", dropped,
			)
			return nil
		}
		p.fetchers = up
	}

	s.logger.Info("pool started",
		"network", p.network,
		"concurrency", p.concurrency,
		"proxies", len(p.fetchers),
	)

	workers := new(errgroup.Group)
	workers.SetLimit(p.concurrency)

	var err error
	for {
		c, takeErr := s.deps.Frontier.Take(ctx, p.network)
		if takeErr != nil {
			if !errors.Is(takeErr, frontier.ErrClosed) && ctx.Err() == nil {
				err = fmt.Errorf("%s pool: %w", p.network, takeErr)
			}
			break
		}
		s.deps.Metrics.Active(p.network, s.deps.Frontier.InFlight(p.network))
		workers.Go(func() error {
			s.process(ctx, p, c)
			return nil
		})
	}

	werr := workers.Wait()
	s.logger.Info("pool stopped", "network", p.network)
	if err != nil {
		return err
	}
	return werr
}

// process fetches one candidate and settles its fate.
//
// Design decision: The fetch and everything after it run on a context
// detached from cancellation. A shutdown never aborts a fetch in flight and
// never leaves a page half stored; the transport's request timeout bounds
// how long that takes.
func (s *Scheduler) process(ctx context.Context, p *pool, c model.Candidate) {
	defer func() {
		s.deps.Metrics.Active(p.network, s.deps.Frontier.InFlight(p.network))
		s.deps.Metrics.Pending(p.network, s.deps.Frontier.Len(p.network))
	}()

	if err := p.politeness.wait(ctx, c.Domain); err != nil {
		// Shutting down. The store still has it pending.
		s.deps.Frontier.Complete(c, false)
		return
	}

	detached := context.WithoutCancel(ctx)
	start := time.Now()
	page, err := p.fetcher().Fetch(detached, c)
	if err != nil {
		s.deps.Metrics.Fetch(p.network, fetchResult(err), time.Since(start))
		s.fail(detached, p, c, err)
		return
	}
	s.deps.Metrics.Fetch(p.network, "ok", time.Since(start))

	job := &pipeline.Job{Candidate: c, Page: page}
	if err := s.deps.Pipeline.Execute(detached, job); err != nil {
		// The candidate stays pending in the store and is fetched again
		// next run.
		s.logger.Error("failed to process page", "address", c.CanonicalAddress, "error", err)
		s.deps.Frontier.Complete(c, false)
		return
	}
	s.deps.Frontier.Complete(c, true)

	s.logger.Debug("page crawled",
		"address", c.CanonicalAddress,
		"status", page.StatusCode,
		"admitted", job.Admitted,
		"facts", len(job.Facts),
	)
}

// fail retries c or dead-letters it.
func (s *Scheduler) fail(ctx context.Context, p *pool, c model.Candidate, err error) {
	var fe *transport.FetchError
	if errors.As(err, &fe) && fe.Page != nil {
		if fact, ok := correlation.ErrorPageFact(fe.Page); ok {
			s.deps.Metrics.Facts([]model.CorrelationFact{fact})
			if _, err := s.deps.Store.RecordCorrelations(ctx, []model.CorrelationFact{fact}); err != nil {
				s.logger.Warn("failed to record error page", "address", c.CanonicalAddress, "error", err)
			}
		}
	}

	transient := transport.IsTransient(err)
	if transient && c.RetryCount < p.maxRetries {
		c.RetryCount++
		s.logger.Debug("fetch failed, will retry",
			"address", c.CanonicalAddress,
			"retry", c.RetryCount,
			"error", err,
		)
		if err := s.deps.Store.MarkRetry(ctx, c.CanonicalAddress, c.RetryCount); err != nil {
			s.logger.Warn("failed to store retry count", "address", c.CanonicalAddress, "error", err)
		}
		if err := s.deps.Frontier.Requeue(c); err != nil {
			s.logger.Debug("retry not queued", "address", c.CanonicalAddress, "error", err)
		}
		return
	}

	reason := model.DeadPermanent
	if transient {
		reason = model.DeadRetriesExhausted
	}
	entry := model.DeadEntry{
		CanonicalAddress: c.CanonicalAddress,
		Network:          c.Network,
		Domain:           c.Domain,
		Reason:           reason,
		RetryCount:       c.RetryCount,
		LastError:        err.Error(),
		LastAttemptAt:    time.Now(),
	}
	written, derr := s.deps.Store.RecordDead(ctx, entry)
	if derr != nil {
		s.logger.Error("failed to record dead letter", "address", c.CanonicalAddress, "error", derr)
	}
	if written {
		s.deps.Metrics.Dead(c.Network, reason)
	}
	s.logger.Warn("address dead",
		"address", c.CanonicalAddress,
		"reason", reason,
		"retries", c.RetryCount,
		"error", err,
	)
	s.deps.Frontier.Complete(c, false)
}

// fetchResult is the metrics label of a failed fetch.
func fetchResult(err error) string {
	var fe *transport.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return transport.KindOther.String()
}
