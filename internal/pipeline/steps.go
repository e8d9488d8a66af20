package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/darkcrawl/internal/correlation"
	"github.com/nao1215/darkcrawl/internal/crawler"
	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/discovery"
	"github.com/nao1215/darkcrawl/internal/frontier"
	"github.com/nao1215/darkcrawl/internal/metrics"
	"github.com/nao1215/darkcrawl/internal/model"
)

// Offerer admits discovered candidates. *frontier.Frontier implements it.
type Offerer interface {
	Admit(ctx context.Context, c model.Candidate) (model.Candidate, frontier.Outcome, error)
}

// Store persists processed pages. *database.CrawlDB implements it.
type Store interface {
	SavePage(ctx context.Context, rec *database.PageRecord) error
}

// Tracker learns which admitted addresses the store holds.
// *dedup.Index implements it.
type Tracker interface {
	Persisted(addresses ...string)
}

// ParseStep fills the parsed fields of HTML pages.
type ParseStep struct {
	logger *slog.Logger
}

// NewParseStep creates a ParseStep.
func NewParseStep(logger *slog.Logger) *ParseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStep{logger: logger}
}

// Name returns the step name.
func (s *ParseStep) Name() string {
	return "parse"
}

// Do parses the page. A body that does not parse still goes on to source
// mining, so parse errors are logged and swallowed.
func (s *ParseStep) Do(_ context.Context, job *Job) error {
	if err := crawler.Populate(job.Page); err != nil {
		s.logger.Debug("failed to parse page", "address", job.Page.Address, "error", err)
	}
	return nil
}

// CorrelateStep extracts the correlation facts of the page.
type CorrelateStep struct {
	engine  *correlation.Engine
	metrics *metrics.Metrics
}

// NewCorrelateStep creates a CorrelateStep. m may be nil.
func NewCorrelateStep(engine *correlation.Engine, m *metrics.Metrics) *CorrelateStep {
	return &CorrelateStep{engine: engine, metrics: m}
}

// Name returns the step name.
func (s *CorrelateStep) Name() string {
	return "correlate"
}

// Do appends the page's facts to the job.
func (s *CorrelateStep) Do(_ context.Context, job *Job) error {
	facts := s.engine.Correlate(job.Page)
	s.metrics.Facts(facts)
	job.Facts = append(job.Facts, facts...)
	return nil
}

// DiscoverStep offers every candidate found on the page to the frontier
// and records the page's outgoing links.
type DiscoverStep struct {
	engine   *discovery.Engine
	frontier Offerer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDiscoverStep creates a DiscoverStep.
func NewDiscoverStep(engine *discovery.Engine, f Offerer, m *metrics.Metrics, logger *slog.Logger) *DiscoverStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoverStep{engine: engine, frontier: f, metrics: m, logger: logger}
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return "discover"
}

// Do runs discovery. Alias facts go to the job so they are stored with the
// page, and so do the admitted candidates. A closed frontier ends discovery
// quietly. A candidate the frontier fails to deduplicate is logged and
// skipped; the rest of the page is still offered and stored.
func (s *DiscoverStep) Do(ctx context.Context, job *Job) error {
	aliases := discovery.Aliases(job.Page, job.Candidate)
	s.metrics.Facts(aliases)
	job.Facts = append(job.Facts, aliases...)

	var offered, failed int
	for c := range s.engine.Discover(ctx, job.Page, job.Candidate) {
		job.Links = append(job.Links, database.Link{To: c.RawAddress, Method: c.Method})
		offered++

		admitted, outcome, err := s.frontier.Admit(ctx, c)
		if errors.Is(err, frontier.ErrClosed) {
			break
		}
		if err != nil {
			failed++
			s.logger.Warn("failed to offer discovered address",
				"address", c.RawAddress,
				"source", job.Candidate.CanonicalAddress,
				"error", err,
			)
			continue
		}
		if outcome == frontier.Admitted {
			job.Admitted++
			job.Discovered = append(job.Discovered, admitted)
		}
	}

	s.logger.Debug("discovery finished",
		"address", job.Candidate.CanonicalAddress,
		"offered", offered,
		"admitted", job.Admitted,
		"failed", failed,
	)
	return nil
}

// PersistStep stores the page, its links, its facts and its discovered
// candidates in one transaction and marks the candidate done.
type PersistStep struct {
	store   Store
	tracker Tracker
}

// NewPersistStep creates a PersistStep. tracker may be nil.
func NewPersistStep(store Store, tracker Tracker) *PersistStep {
	return &PersistStep{store: store, tracker: tracker}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves the job.
func (s *PersistStep) Do(ctx context.Context, job *Job) error {
	if err := s.store.SavePage(ctx, &database.PageRecord{
		Candidate:  job.Candidate,
		Page:       job.Page,
		Links:      job.Links,
		Facts:      job.Facts,
		Discovered: job.Discovered,
	}); err != nil {
		return err
	}

	if s.tracker != nil {
		saved := make([]string, 0, len(job.Discovered)+1)
		saved = append(saved, job.Candidate.CanonicalAddress)
		for _, c := range job.Discovered {
			saved = append(saved, c.CanonicalAddress)
		}
		s.tracker.Persisted(saved...)
	}
	return nil
}

// Deps are the components the crawl pipeline drives.
type Deps struct {
	Discovery   *discovery.Engine
	Correlation *correlation.Engine
	Frontier    Offerer
	Store       Store
	Tracker     Tracker
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewCrawlPipeline builds the pipeline every fetched page goes through:
// parse, correlate, discover, persist.
//
// Design decision: Persistence comes last so a page is only marked done
// once everything derived from it has been produced. A crash before the
// persist step leaves the candidate pending and it is fetched again on
// restart. The candidates it discovered are stored in the same transaction,
// so a page is never stored without them and they are never stored without
// it.
func NewCrawlPipeline(d Deps, opts ...Option) *Pipeline {
	p := New(append([]Option{WithLogger(d.Logger)}, opts...)...)
	p.AddSteps(
		NewParseStep(p.logger),
		NewCorrelateStep(d.Correlation, d.Metrics),
		NewDiscoverStep(d.Discovery, d.Frontier, d.Metrics, p.logger),
		NewPersistStep(d.Store, d.Tracker),
	)
	return p
}
