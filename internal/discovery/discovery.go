package discovery

import (
	"context"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/crawler"
	"github.com/nao1215/darkcrawl/internal/model"
)

// Defaults for Config.
const (
	DefaultMaxFormVariants = 6
	DefaultMaxEnumerate    = 2
)

// Config toggles the discovery strategies.
type Config struct {
	ExplicitLinks       bool
	SourceMining        bool
	HeaderAliases       bool
	FormSpidering       bool
	InfrastructureProbe bool
	PatternMutation     bool

	// MaxFormVariants caps the query URLs generated per search form.
	MaxFormVariants int

	// MaxEnumerate is k in the N-k..N+k neighbour range of pattern mutation.
	MaxEnumerate int
}

// DefaultConfig enables every strategy.
func DefaultConfig() Config {
	return Config{
		ExplicitLinks:       true,
		SourceMining:        true,
		HeaderAliases:       true,
		FormSpidering:       true,
		InfrastructureProbe: true,
		PatternMutation:     true,
		MaxFormVariants:     DefaultMaxFormVariants,
		MaxEnumerate:        DefaultMaxEnumerate,
	}
}

// Engine generates candidate addresses from fetched pages.
//
// Engine is safe for concurrent use. The only state shared between pages is
// the set of domains already probed.
type Engine struct {
	cfg    Config
	scope  *crawler.Scope
	logger *slog.Logger

	// probed holds network|domain keys of domains whose infrastructure
	// probes were emitted.
	probed sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithScope filters discovered URLs through path patterns.
func WithScope(scope *crawler.Scope) Option {
	return func(e *Engine) {
		e.scope = scope
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.MaxFormVariants <= 0 {
		cfg.MaxFormVariants = DefaultMaxFormVariants
	}
	if cfg.MaxEnumerate < 0 {
		cfg.MaxEnumerate = 0
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// emitFunc hands one raw address to the consumer. It returns false when the
// consumer stopped.
type emitFunc func(raw string, method model.DiscoveryMethod) bool

// strategy emits the candidates one technique finds on a page.
type strategy func(page *model.PageResult, emit emitFunc) bool

// Discover yields the candidates found on page, which was fetched for
// source. The page must have been through crawler.Populate.
//
// Every candidate is derived from source: one level deeper, with source as
// its SourceAddress. Candidates are unclassified; the network is sniffed
// from the address because a page on one network may link to another.
// Addresses that do not belong to any known network are dropped, and each
// raw address is yielded at most once per page.
func (e *Engine) Discover(ctx context.Context, page *model.PageResult, source model.Candidate) iter.Seq[model.Candidate] {
	return func(yield func(model.Candidate) bool) {
		if page == nil {
			return
		}

		seen := make(map[string]struct{})
		emit := func(raw string, method model.DiscoveryMethod) bool {
			if ctx.Err() != nil {
				return false
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				return true
			}
			if _, dup := seen[raw]; dup {
				return true
			}
			seen[raw] = struct{}{}

			network, ok := classify.Sniff(raw)
			if !ok {
				return true
			}
			if !e.scope.Allows(raw) {
				return true
			}
			return yield(source.Derive(raw, network, method))
		}

		for _, s := range e.strategies(source) {
			if !s(page, emit) {
				return
			}
		}
	}
}

// strategies returns the enabled strategies in emission order. Order matters
// only for which method tags an address found by two strategies: the first
// one wins.
func (e *Engine) strategies(source model.Candidate) []strategy {
	var out []strategy
	if e.cfg.ExplicitLinks {
		out = append(out, explicitLinks)
	}
	if e.cfg.HeaderAliases {
		out = append(out, headerAliases)
	}
	if e.cfg.SourceMining {
		out = append(out, mineSource)
	}
	if e.cfg.FormSpidering {
		out = append(out, e.spiderForms)
	}
	if e.cfg.InfrastructureProbe {
		out = append(out, e.probeInfrastructure(source), parseProbeResponse)
	}
	if e.cfg.PatternMutation {
		out = append(out, e.mutatePatterns)
	}
	return out
}

func explicitLinks(page *model.PageResult, emit emitFunc) bool {
	for _, link := range page.Links {
		if !emit(link, model.MethodExplicitLink) {
			return false
		}
	}
	return true
}

// resolver resolves references against the page's base URL.
type resolver struct {
	base *url.URL
}

func newResolver(page *model.PageResult) resolver {
	base, err := url.Parse(crawler.BaseURL(page))
	if err != nil {
		return resolver{}
	}
	return resolver{base: base}
}

// resolve returns ref as an absolute URL, or "" if it cannot be resolved.
func (r resolver) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || r.base == nil {
		return ""
	}
	u, err := r.base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
