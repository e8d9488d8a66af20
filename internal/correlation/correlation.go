package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/darkcrawl/internal/model"
)

// detector extracts one family of facts from a page.
type detector struct {
	name    string
	applies func(page *model.PageResult) bool
	detect  func(page *model.PageResult, facts *factSet)
}

// Engine extracts correlation facts from fetched pages.
//
// Design decision: Every fact is local to one page. The engine never looks
// at other domains; finding two domains that share a fact is a query over
// the store, not work done while crawling. That keeps Correlate a pure
// function of the page and safe to call from any worker.
type Engine struct {
	detectors []detector
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine with every detector registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		detectors: []detector{
			{name: "favicon", applies: isFavicon, detect: detectFavicon},
			{name: "headers", applies: hasHeaders, detect: detectHeaders},
			{name: "cookies", applies: hasHeaders, detect: detectCookies},
			{name: "content", applies: isTextBody, detect: detectContent},
			{name: "exif", applies: hasExif, detect: detectExif},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Correlate returns the facts page exhibits, each at most once. The page
// must have been through crawler.Populate so meta tags are available.
func (e *Engine) Correlate(page *model.PageResult) []model.CorrelationFact {
	if page == nil || page.Domain == "" {
		return nil
	}

	facts := newFactSet(page.Domain)
	for _, d := range e.detectors {
		if !d.applies(page) {
			continue
		}
		before := facts.len()
		d.detect(page, facts)
		if n := facts.len() - before; n > 0 {
			e.logger.Debug("correlation facts", "detector", d.name, "domain", page.Domain, "count", n)
		}
	}
	return facts.list()
}

// FaviconFact returns the favicon_hash fact of a favicon body.
func FaviconFact(domain string, body []byte) model.CorrelationFact {
	return model.CorrelationFact{
		Domain: domain,
		Type:   model.CorrelationFaviconHash,
		Value:  sha256Hex(body),
	}
}

// ErrorPageFact returns the error_page_hash fact of an HTTP error response.
// Sites served by the same software stack tend to share their error pages
// byte for byte. It returns false for empty bodies.
func ErrorPageFact(page *model.PageResult) (model.CorrelationFact, bool) {
	if page == nil || page.Domain == "" || len(page.Body) == 0 {
		return model.CorrelationFact{}, false
	}
	return model.CorrelationFact{
		Domain: page.Domain,
		Type:   model.CorrelationErrorPageHash,
		Value:  sha256Hex(page.Body),
	}, true
}

// factSet collects the facts of one page without duplicates.
type factSet struct {
	domain string
	seen   map[model.CorrelationFact]struct{}
	facts  []model.CorrelationFact
}

func newFactSet(domain string) *factSet {
	return &factSet{domain: domain, seen: make(map[model.CorrelationFact]struct{})}
}

func (s *factSet) add(typ model.CorrelationType, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	f := model.CorrelationFact{Domain: s.domain, Type: typ, Value: value}
	if _, dup := s.seen[f]; dup {
		return
	}
	s.seen[f] = struct{}{}
	s.facts = append(s.facts, f)
}

func (s *factSet) len() int { return len(s.facts) }

func (s *factSet) list() []model.CorrelationFact { return s.facts }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func isFavicon(page *model.PageResult) bool {
	if len(page.Body) == 0 {
		return false
	}
	switch page.ContentType {
	case "image/x-icon", "image/vnd.microsoft.icon":
		return true
	}
	u, err := url.Parse(page.URL())
	if err != nil {
		return false
	}
	return page.IsImage() && path.Base(u.Path) == "favicon.ico"
}

func detectFavicon(page *model.PageResult, facts *factSet) {
	facts.add(model.CorrelationFaviconHash, sha256Hex(page.Body))
}

func hasHeaders(page *model.PageResult) bool {
	return len(page.Headers) > 0
}

func isTextBody(page *model.PageResult) bool {
	return len(page.Body) > 0 && page.IsText()
}
