package frontier

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/metrics"
	"github.com/nao1215/darkcrawl/internal/model"
)

// DefaultMaxDepth is used when Config.MaxDepth is not positive.
const DefaultMaxDepth = 10

// Outcome is the result of Offer.
type Outcome int

const (
	// Admitted means the candidate was queued.
	Admitted Outcome = iota
	// RejectedDuplicate means the address was admitted before.
	RejectedDuplicate
	// RejectedInvalid means the classifier did not accept the address.
	RejectedInvalid
	// RejectedDepth means the candidate is deeper than the depth ceiling.
	RejectedDepth
	// RejectedBackpressure means an aliasable candidate met a full partition.
	RejectedBackpressure
	// RejectedDisabled means the candidate's network is not enabled.
	RejectedDisabled
	// Failed means the deduplication store returned an error.
	Failed
)

var outcomeNames = []string{
	Admitted:             "admitted",
	RejectedDuplicate:    "duplicate",
	RejectedInvalid:      "invalid",
	RejectedDepth:        "depth",
	RejectedBackpressure: "backpressure",
	RejectedDisabled:     "disabled",
	Failed:               "error",
}

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	if int(o) >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Deduper decides whether a candidate is new to the crawl.
// *dedup.Index implements it.
type Deduper interface {
	ShouldAdmit(ctx context.Context, c model.Candidate) (bool, error)
	MarkSeen(addresses ...string)
}

// Config holds the frontier limits.
type Config struct {
	// MaxDepth is the depth ceiling enforced at Offer.
	MaxDepth int

	// MaxPagesPerDomain caps completed plus in-flight fetches per domain,
	// enforced at Take. Zero means no cap.
	MaxPagesPerDomain int

	// BackpressureThreshold is the partition length above which aliasable
	// candidates are rejected. Zero disables backpressure.
	BackpressureThreshold int

	// Networks lists the enabled networks with their max concurrency.
	// A zero concurrency means no per-network slot cap.
	Networks map[model.Network]int
}

// Frontier is the crawl work queue: one priority partition per network.
//
// Design decision: All queue state lives behind one mutex, and workers that
// find nothing eligible park on a sync.Cond instead of polling. Every state
// change that can make a candidate eligible (a push, a Complete, a limit
// change, Close) broadcasts, and each woken taker re-checks only its own
// network's partition.
//
// Per-domain and per-network caps are applied at Take, not at Offer. A
// candidate whose domain is full is moved to a per-domain parking list, still
// counted by Len, and returned to its partition with its original sequence
// number once the domain has room again.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg   Config
	dedup Deduper

	queues       map[model.Network]*candidateHeap
	parked       map[string][]model.Candidate
	parkedCount  map[model.Network]int
	inflight     map[model.Network]int
	domainActive map[string]int
	completed    map[string]int

	seq      uint64
	closed   bool
	disabled map[model.Network]bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Frontier) {
		f.metrics = m
	}
}

// New creates a Frontier. Networks that are not schedulable are dropped from
// cfg.Networks.
func New(cfg Config, dedup Deduper, opts ...Option) *Frontier {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}

	networks := make(map[model.Network]int, len(cfg.Networks))
	queues := make(map[model.Network]*candidateHeap, len(cfg.Networks))
	for n, concurrency := range cfg.Networks {
		if !n.Schedulable() {
			continue
		}
		networks[n] = concurrency
		queues[n] = &candidateHeap{}
	}
	cfg.Networks = networks

	f := &Frontier{
		cfg:          cfg,
		dedup:        dedup,
		queues:       queues,
		parked:       make(map[string][]model.Candidate),
		parkedCount:  make(map[model.Network]int),
		inflight:     make(map[model.Network]int),
		domainActive: make(map[string]int),
		completed:    make(map[string]int),
		disabled:     make(map[model.Network]bool),
	}
	f.cond = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Enabled reports whether the frontier accepts candidates for network.
func (f *Frontier) Enabled(network model.Network) bool {
	if _, ok := f.cfg.Networks[network]; !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disabled[network]
}

// Disable stops scheduling network for the rest of the run. Its queued
// candidates are dropped from memory, Offer rejects it as disabled and
// WaitIdle no longer waits for it. The candidates stay pending in the store
// and are restored by the next run. It returns the number of candidates
// dropped.
func (f *Frontier) Disable(network model.Network) int {
	if _, ok := f.cfg.Networks[network]; !ok {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled[network] {
		return 0
	}
	f.disabled[network] = true

	dropped := f.lenLocked(network)
	f.queues[network] = &candidateHeap{}
	for key, parked := range f.parked {
		if len(parked) > 0 && parked[0].Network == network {
			delete(f.parked, key)
		}
	}
	f.parkedCount[network] = 0
	f.metrics.Pending(network, 0)
	f.cond.Broadcast()
	return dropped
}

// Offer classifies, scores and deduplicates a discovered candidate and queues
// it when admitted. RawAddress, Network, Depth, SourceAddress and Method are
// taken from c; everything else is assigned here.
//
// Only a store failure during deduplication or a closed frontier returns a
// non-nil error. Every rejection is reported through the Outcome.
func (f *Frontier) Offer(ctx context.Context, c model.Candidate) (Outcome, error) {
	_, outcome, err := f.Admit(ctx, c)
	return outcome, err
}

// Admit is Offer returning the candidate as it was queued, with its
// canonical address, domain, tier and priority filled in. The candidate is
// only meaningful when the outcome is Admitted.
func (f *Frontier) Admit(ctx context.Context, c model.Candidate) (model.Candidate, Outcome, error) {
	admitted, outcome, err := f.offer(ctx, c)
	f.metrics.Offer(c.Network, outcome.String())
	if err != nil {
		return admitted, outcome, err
	}
	if outcome != Admitted {
		f.logger.Debug("candidate rejected",
			"address", c.RawAddress,
			"network", c.Network.String(),
			"method", c.Method.String(),
			"outcome", outcome.String(),
		)
	}
	return admitted, outcome, nil
}

func (f *Frontier) offer(ctx context.Context, c model.Candidate) (model.Candidate, Outcome, error) {
	if !f.Enabled(c.Network) {
		return c, RejectedDisabled, nil
	}

	canonical, tier, err := classify.Classify(c.Network, c.RawAddress)
	if err != nil {
		return c, RejectedInvalid, nil
	}
	c.CanonicalAddress = canonical
	c.Domain = classify.Domain(c.Network, canonical)
	c.Tier = tier

	if c.Depth > f.cfg.MaxDepth {
		return c, RejectedDepth, nil
	}

	f.mu.Lock()
	closed := f.closed
	pressured := tier == model.TierAliasable &&
		f.cfg.BackpressureThreshold > 0 &&
		f.lenLocked(c.Network) > f.cfg.BackpressureThreshold
	f.mu.Unlock()
	if closed {
		return c, RejectedDisabled, ErrClosed
	}
	if pressured {
		return c, RejectedBackpressure, nil
	}

	c.Priority = model.Priority(tier, c.Depth)
	c.Status = model.StatusPending
	c.RetryCount = 0

	admit, err := f.dedup.ShouldAdmit(ctx, c)
	if err != nil {
		return c, Failed, fmt.Errorf("offer %s: %w", canonical, err)
	}
	if !admit {
		return c, RejectedDuplicate, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return c, RejectedDisabled, ErrClosed
	}
	if f.disabled[c.Network] {
		return c, RejectedDisabled, nil
	}
	f.pushLocked(c)
	return c, Admitted, nil
}

// Seed queues an operator supplied address at depth zero. Seeds bypass
// deduplication but are marked seen, so links back to a seed are rejected
// as duplicates.
func (f *Frontier) Seed(network model.Network, raw string) (model.Candidate, error) {
	if !f.Enabled(network) {
		return model.Candidate{}, fmt.Errorf("seed %s: %w", raw, ErrNotSchedulable)
	}
	canonical, tier, err := classify.Classify(network, raw)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("seed: %w", err)
	}

	c := model.Candidate{
		RawAddress:       raw,
		CanonicalAddress: canonical,
		Network:          network,
		Domain:           classify.Domain(network, canonical),
		Tier:             tier,
		Method:           model.MethodSeed,
		Priority:         model.Priority(tier, 0),
		Status:           model.StatusPending,
	}
	f.dedup.MarkSeen(canonical)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return model.Candidate{}, ErrClosed
	}
	f.pushLocked(c)
	return c, nil
}

// Restore queues a candidate that was admitted in an earlier run and never
// completed. Its stored priority is kept and deduplication is bypassed.
func (f *Frontier) Restore(c model.Candidate) error {
	if !f.Enabled(c.Network) {
		return fmt.Errorf("restore %s: %w", c.CanonicalAddress, ErrNotSchedulable)
	}
	if c.Domain == "" {
		c.Domain = classify.Domain(c.Network, c.CanonicalAddress)
	}
	if c.Priority == 0 {
		c.Priority = model.Priority(c.Tier, c.Depth)
	}
	c.Status = model.StatusPending
	f.dedup.MarkSeen(c.CanonicalAddress)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.pushLocked(c)
	return nil
}

// Take removes and returns the highest-priority eligible candidate of
// network, blocking while there is none. The returned candidate is InFlight
// and must be handed back with Complete or Requeue.
//
// Take returns ErrClosed after Close and ctx.Err() once ctx is done.
func (f *Frontier) Take(ctx context.Context, network model.Network) (model.Candidate, error) {
	if !f.Enabled(network) {
		return model.Candidate{}, ErrNotSchedulable
	}

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed {
			return model.Candidate{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return model.Candidate{}, err
		}
		if f.disabled[network] {
			return model.Candidate{}, ErrNotSchedulable
		}
		if c, ok := f.nextLocked(network); ok {
			return c, nil
		}
		f.cond.Wait()
	}
}

// Complete releases the in-flight slot of c. done counts the fetch toward
// the domain's page cap.
func (f *Frontier) Complete(c model.Candidate, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := domainKey(c.Network, c.Domain)
	f.releaseLocked(c.Network, key)
	if done {
		f.completed[key]++
	}
	f.unparkLocked(c.Network, key)
	f.cond.Broadcast()
}

// Requeue releases the in-flight slot of a failed candidate and queues it
// again with its priority unchanged and a fresh sequence number.
// Deduplication is bypassed. The caller increments RetryCount.
func (f *Frontier) Requeue(c model.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := domainKey(c.Network, c.Domain)
	f.releaseLocked(c.Network, key)
	if f.closed {
		f.cond.Broadcast()
		return ErrClosed
	}
	if f.disabled[c.Network] {
		f.cond.Broadcast()
		return ErrNotSchedulable
	}
	c.Status = model.StatusPending
	f.pushLocked(c)
	f.unparkLocked(c.Network, key)
	return nil
}

// SetMaxPagesPerDomain changes the per-domain cap. Parked candidates whose
// domain has room under the new cap become eligible again.
func (f *Frontier) SetMaxPagesPerDomain(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg.MaxPagesPerDomain = n
	for key, parked := range f.parked {
		if len(parked) > 0 {
			f.unparkLocked(parked[0].Network, key)
		}
	}
	f.cond.Broadcast()
}

// Len returns the number of pending candidates of network, parked ones
// included.
func (f *Frontier) Len(network model.Network) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lenLocked(network)
}

// InFlight returns the number of candidates of network held by workers.
func (f *Frontier) InFlight(network model.Network) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight[network]
}

// WaitIdle blocks until no candidate is in flight and no partition holds an
// eligible candidate. Parked candidates and disabled networks do not prevent
// idleness.
func (f *Frontier) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.idleLocked() {
			return nil
		}
		f.cond.Wait()
	}
}

// Close wakes every parked taker. Take and Offer fail with ErrClosed
// afterwards.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

func (f *Frontier) pushLocked(c model.Candidate) {
	q, ok := f.queues[c.Network]
	if !ok || f.disabled[c.Network] {
		return
	}
	f.seq++
	c.Seq = f.seq
	heap.Push(q, c)
	f.metrics.Pending(c.Network, f.lenLocked(c.Network))
	f.cond.Broadcast()
}

// nextLocked pops the first candidate of network whose domain has room,
// parking the ones whose domain is full.
func (f *Frontier) nextLocked(network model.Network) (model.Candidate, bool) {
	if limit := f.cfg.Networks[network]; limit > 0 && f.inflight[network] >= limit {
		return model.Candidate{}, false
	}

	q := f.queues[network]
	parkedAny := false
	defer func() {
		if parkedAny {
			f.cond.Broadcast()
		}
	}()
	for q.Len() > 0 {
		c := heap.Pop(q).(model.Candidate)
		key := domainKey(network, c.Domain)
		if f.domainFullLocked(key) {
			f.parked[key] = append(f.parked[key], c)
			f.parkedCount[network]++
			parkedAny = true
			continue
		}

		c.Status = model.StatusInFlight
		f.inflight[network]++
		f.domainActive[key]++
		f.metrics.Pending(network, f.lenLocked(network))
		f.metrics.Active(network, f.inflight[network])
		return c, true
	}
	return model.Candidate{}, false
}

func (f *Frontier) releaseLocked(network model.Network, key string) {
	if f.inflight[network] > 0 {
		f.inflight[network]--
	}
	if f.domainActive[key] > 0 {
		f.domainActive[key]--
	}
	f.metrics.Active(network, f.inflight[network])
}

func (f *Frontier) unparkLocked(network model.Network, key string) {
	parked := f.parked[key]
	if len(parked) == 0 || f.domainFullLocked(key) {
		return
	}
	q := f.queues[network]
	for _, c := range parked {
		heap.Push(q, c)
	}
	f.parkedCount[network] -= len(parked)
	delete(f.parked, key)
}

func (f *Frontier) domainFullLocked(key string) bool {
	limit := f.cfg.MaxPagesPerDomain
	return limit > 0 && f.completed[key]+f.domainActive[key] >= limit
}

func (f *Frontier) lenLocked(network model.Network) int {
	q, ok := f.queues[network]
	if !ok {
		return 0
	}
	return q.Len() + f.parkedCount[network]
}

func (f *Frontier) idleLocked() bool {
	for n, q := range f.queues {
		if f.disabled[n] {
			continue
		}
		if q.Len() > 0 || f.inflight[n] > 0 {
			return false
		}
	}
	return true
}

func domainKey(network model.Network, domain string) string {
	return network.String() + "|" + domain
}
