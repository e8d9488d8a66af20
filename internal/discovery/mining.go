package discovery

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Patterns applied to raw response bytes. Each has one capture group holding
// the address.
var (
	// Absolute URLs in string literals.
	jsURLPattern = regexp.MustCompile(`["'](https?://[^"'\s]{5,})["']`)

	// Absolute paths in string literals, resolved against the page.
	jsPathPattern = regexp.MustCompile(`["'](/[a-zA-Z0-9_/\-\.]{2,})["']`)

	// Onion hosts in string literals, with or without scheme.
	jsOnionPattern = regexp.MustCompile(`["']((?:https?://)?[a-z2-7]{56}\.onion[^"'\s]*)["']`)

	fetchPattern    = regexp.MustCompile(`fetch\(\s*["']([^"']+)["']`)
	locationPattern = regexp.MustCompile(`location(?:\.href)?\s*=\s*["']([^"']+)["']`)
	xhrPattern      = regexp.MustCompile(`\.open\(\s*["'][A-Za-z]+["']\s*,\s*["']([^"']+)["']`)

	dataAttrPattern = regexp.MustCompile(`data-(?:url|href|src|link|page|redirect|api|endpoint)\s*=\s*["']([^"']+)["']`)

	eventHandlerPattern = regexp.MustCompile(`on(?:click|load|submit|mouseover|change)\s*=\s*["'][^"']*?["'](/[^"'\s]+|https?://[^"'\s]+)["']`)

	bareOnionPattern    = regexp.MustCompile(`(https?://[a-z2-7]{56}\.onion(?:/[^\s"'<>]*)?)`)
	bareI2PPattern      = regexp.MustCompile(`(https?://[a-zA-Z0-9\-\.]+\.i2p(?:/[^\s"'<>]*)?)`)
	bareBitPattern      = regexp.MustCompile(`(https?://[a-zA-Z0-9\-\.]+\.bit(?:/[^\s"'<>]*)?)`)
	bareLokiPattern     = regexp.MustCompile(`(https?://[a-z0-9\-\.]+\.loki(?:/[^\s"'<>]*)?)`)
	hyphanetKeyPattern  = regexp.MustCompile(`((?:hyphanet|freenet):(?:USK|SSK|CHK|KSK)@[^\s"'<>]+)`)
	plainCommentPattern = regexp.MustCompile(`(?s)<!--(.*?)-->`)
)

// hiddenSelectors select links that are present in the markup but not shown.
var hiddenSelectors = []string{
	"[style*='display:none'] a[href]",
	"[style*='display: none'] a[href]",
	"[style*='visibility:hidden'] a[href]",
	"[style*='visibility: hidden'] a[href]",
	".hidden a[href]",
	".d-none a[href]",
	"noscript a[href]",
}

// mineSource scans the raw body for addresses the HTML parser does not
// surface: script literals, comments, data attributes, hidden elements and
// bare addresses in text.
func mineSource(page *model.PageResult, emit emitFunc) bool {
	if !page.IsText() || len(page.Body) == 0 {
		return true
	}
	body := string(page.Body)
	r := newResolver(page)

	absolute := func(raw string) bool {
		return emit(raw, model.MethodSourceMining)
	}
	relative := func(ref string) bool {
		if u := r.resolve(ref); u != "" {
			return emit(u, model.MethodSourceMining)
		}
		return true
	}

	for _, re := range []*regexp.Regexp{
		jsURLPattern, jsOnionPattern,
		bareOnionPattern, bareI2PPattern, bareBitPattern, bareLokiPattern, hyphanetKeyPattern,
	} {
		if !eachMatch(re, body, absolute) {
			return false
		}
	}
	for _, re := range []*regexp.Regexp{
		jsPathPattern, fetchPattern, locationPattern, xhrPattern, dataAttrPattern, eventHandlerPattern,
	} {
		if !eachMatch(re, body, relative) {
			return false
		}
	}

	// Comments of non-HTML text bodies are not parsed into page.Comments.
	comments := page.Comments
	if !page.IsHTML() {
		for _, m := range plainCommentPattern.FindAllStringSubmatch(body, -1) {
			comments = append(comments, m[1])
		}
	}
	for _, c := range comments {
		if !mineComment(c, relative) {
			return false
		}
	}

	if page.IsHTML() {
		return mineHidden(page, relative)
	}
	return true
}

// mineComment emits links inside commented-out markup and URLs in comment text.
func mineComment(comment string, emit func(string) bool) bool {
	if strings.Contains(comment, "href") || strings.Contains(comment, "src") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(comment))
		if err == nil {
			ok := true
			doc.Find("a[href], link[href], script[src], img[src], iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				ref, exists := s.Attr("href")
				if !exists {
					ref, _ = s.Attr("src")
				}
				ok = emit(ref)
				return ok
			})
			if !ok {
				return false
			}
		}
	}
	return eachMatch(jsURLPattern, comment, emit)
}

// mineHidden emits links inside elements styled or classed as hidden, and
// inside <noscript>.
func mineHidden(page *model.PageResult, emit func(string) bool) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return true
	}
	for _, sel := range hiddenSelectors {
		ok := true
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			ok = emit(href)
			return ok
		})
		if !ok {
			return false
		}
	}

	// Text inside <noscript> is not parsed as markup by the HTML parser.
	ok := true
	doc.Find("noscript").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		inner := s.Text()
		if !strings.Contains(inner, "href") {
			return true
		}
		frag, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
		if err != nil {
			return true
		}
		frag.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			ok = emit(href)
			return ok
		})
		return ok
	})
	return ok
}

func eachMatch(re *regexp.Regexp, s string, fn func(string) bool) bool {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if !fn(trimTrailingPunct(m[1])) {
			return false
		}
	}
	return true
}

// trimTrailingPunct strips sentence punctuation a bare address in prose
// tends to pick up.
func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, ".,;:!?)]}")
}
