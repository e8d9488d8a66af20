package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Default filter sizing. The filter grows in false-positive rate, not in
// correctness, when more addresses than DefaultCapacity are inserted.
const (
	DefaultCapacity = 100_000
	DefaultFPRate   = 0.001
)

// Store is the durable authority on which addresses have ever been seen.
// It is only read; the rows are written with the page that discovered them.
// *database.CrawlDB implements it.
type Store interface {
	IsSeen(ctx context.Context, canonical string) (bool, error)
}

// Stats counts admission outcomes.
type Stats struct {
	// Admitted is the number of addresses ShouldAdmit accepted.
	Admitted uint64

	// Duplicates is the number of confirmed duplicates.
	Duplicates uint64

	// FalsePositives is the number of times the filter said "maybe seen"
	// and the store said "new".
	FalsePositives uint64
}

// Index decides whether a canonical address is new to the crawl.
//
// Design decision: The index is two-phase. A bloom filter answers "definitely
// not seen" in memory with no I/O, which is the common case for a crawler
// that mostly discovers new addresses. A "maybe seen" answer is resolved by
// the store, so a false positive never drops a new address. The filter has
// no false negatives, which gives the overall index none either.
//
// Admitted addresses reach the store only when the page that discovered them
// is saved. Until Persisted is called for them they are held in unsaved, which
// the "maybe seen" path checks before the store.
type Index struct {
	// mu serializes test-and-add and the confirmation that follows it, so a
	// concurrent duplicate cannot slip between the two.
	mu     sync.Mutex
	filter *bloom.BloomFilter
	store  Store

	// unsaved holds admitted addresses the store does not have yet.
	unsaved map[string]struct{}

	// exact replaces the store when none is configured.
	exact map[string]struct{}

	stats           Stats
	onFalsePositive func()
	logger          *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithStore sets the durable confirmation store.
func WithStore(store Store) Option {
	return func(ix *Index) {
		ix.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = logger
	}
}

// WithFalsePositiveHook sets a function called on every store-resolved
// false positive, under the index lock.
func WithFalsePositiveHook(fn func()) Option {
	return func(ix *Index) {
		ix.onFalsePositive = fn
	}
}

// New creates an Index sized for capacity addresses at the given
// false-positive rate. Non-positive values fall back to the defaults.
func New(capacity uint, fpRate float64, opts ...Option) *Index {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFPRate
	}

	ix := &Index{
		filter:  bloom.NewWithEstimates(capacity, fpRate),
		unsaved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.store == nil {
		ix.exact = make(map[string]struct{})
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix
}

// ShouldAdmit reports whether the candidate's canonical address has never
// been seen, marking it seen when it returns true. A true result is returned
// at most once per address.
//
// A "definitely not seen" answer is given from memory. Only a "maybe seen"
// answer reads the store. A store error is returned wrapped and the address
// is not admitted; the filter keeps the address, so a retry goes through the
// store.
func (ix *Index) ShouldAdmit(ctx context.Context, c model.Candidate) (bool, error) {
	canonical := c.CanonicalAddress

	ix.mu.Lock()
	defer ix.mu.Unlock()

	maybeSeen := ix.filter.TestAndAddString(canonical)

	if ix.store == nil {
		if _, dup := ix.exact[canonical]; dup {
			ix.stats.Duplicates++
			return false, nil
		}
		ix.exact[canonical] = struct{}{}
		if maybeSeen {
			ix.stats.FalsePositives++
		}
		ix.stats.Admitted++
		return true, nil
	}

	if !maybeSeen {
		ix.unsaved[canonical] = struct{}{}
		ix.stats.Admitted++
		return true, nil
	}

	if _, dup := ix.unsaved[canonical]; dup {
		ix.stats.Duplicates++
		return false, nil
	}
	seen, err := ix.store.IsSeen(ctx, canonical)
	if err != nil {
		return false, fmt.Errorf("dedup confirm %s: %w", canonical, err)
	}
	if seen {
		ix.stats.Duplicates++
		return false, nil
	}

	ix.unsaved[canonical] = struct{}{}
	ix.stats.FalsePositives++
	ix.stats.Admitted++
	if ix.onFalsePositive != nil {
		ix.onFalsePositive()
	}
	ix.logger.Debug("bloom false positive resolved by store", "address", canonical)
	return true, nil
}

// Persisted tells the index that the store now holds addresses.
func (ix *Index) Persisted(addresses ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, a := range addresses {
		delete(ix.unsaved, a)
	}
}

// Unsaved returns the number of admitted addresses the store does not hold
// yet.
func (ix *Index) Unsaved() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.unsaved)
}

// MarkSeen adds addresses to the filter without admitting them. Used at
// startup to warm the filter from the durable seen table and the dead-letter
// table, and for seeds that bypass admission.
func (ix *Index) MarkSeen(addresses ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, a := range addresses {
		ix.filter.AddString(a)
		if ix.exact != nil {
			ix.exact[a] = struct{}{}
		}
	}
}

// Stats returns a snapshot of admission counters.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.stats
}

// ApproximateSize estimates the number of distinct addresses in the filter.
func (ix *Index) ApproximateSize() uint32 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.filter.ApproximatedSize()
}
