package discovery

import (
	"bufio"
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"

	"github.com/nao1215/darkcrawl/internal/model"
)

// probePaths are requested once on every domain.
var probePaths = []string{
	"/robots.txt",
	"/sitemap.xml",
	"/favicon.ico",
	"/admin",
	"/login",
	"/.well-known/security.txt",
	"/server-status",
}

// probeInfrastructure returns the strategy that emits the well-known paths
// of the source domain. It emits them only on the first page of a domain.
// Hyphanet and ZeroNet sites have no server to probe.
func (e *Engine) probeInfrastructure(source model.Candidate) strategy {
	return func(page *model.PageResult, emit emitFunc) bool {
		if page.Network == model.NetworkHyphanet || page.Network == model.NetworkZeroNet {
			return true
		}

		base := siteRoot(page.URL())
		if base == "" {
			return true
		}

		domain := source.Domain
		if domain == "" {
			domain = page.Domain
		}
		key := page.Network.String() + "|" + domain
		if _, done := e.probed.LoadOrStore(key, struct{}{}); !done {
			e.logger.Debug("probing infrastructure", "network", page.Network, "domain", domain)
			for _, p := range probePaths {
				if !emit(base+p, model.MethodInfrastructureProbe) {
					return false
				}
			}
		}

		for _, icon := range page.Icons {
			if !emit(icon, model.MethodInfrastructureProbe) {
				return false
			}
		}
		return true
	}
}

// parseProbeResponse extracts the URLs listed by a fetched robots.txt or
// sitemap.
func parseProbeResponse(page *model.PageResult, emit emitFunc) bool {
	if len(page.Body) == 0 {
		return true
	}
	u, err := url.Parse(page.URL())
	if err != nil {
		return true
	}

	var found []string
	switch {
	case strings.EqualFold(u.Path, "/robots.txt"):
		found = parseRobots(page.Body, u)
	case isSitemap(u.Path, page):
		found = parseSitemap(page.Body)
	default:
		return true
	}

	for _, raw := range found {
		if !emit(raw, model.MethodInfrastructureProbe) {
			return false
		}
	}
	return true
}

func isSitemap(p string, page *model.PageResult) bool {
	if strings.EqualFold(path.Ext(p), ".xml") && strings.Contains(strings.ToLower(p), "sitemap") {
		return true
	}
	if page.ContentType != "application/xml" && page.ContentType != "text/xml" {
		return false
	}
	head := page.Body
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<urlset")) || bytes.Contains(head, []byte("<sitemapindex"))
}

// parseRobots returns the Sitemap URLs and the Allow/Disallow paths of a
// robots.txt resolved against base. The root path and wildcard patterns are
// skipped: they do not name a page.
func parseRobots(body []byte, base *url.URL) []string {
	var out []string

	if robots, err := robotstxt.FromBytes(body); err == nil {
		out = append(out, robots.Sitemaps...)
	}

	// robotstxt matches paths against rules but does not expose them.
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "allow" && key != "disallow" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || value == "/" || strings.ContainsAny(value, "*$") {
			continue
		}
		ref, err := base.Parse(value)
		if err != nil {
			continue
		}
		ref.Fragment = ""
		out = append(out, ref.String())
	}
	return out
}

// parseSitemap returns the <loc> values of a sitemap or sitemap index.
func parseSitemap(body []byte) []string {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// siteRoot returns scheme://host of raw, or "" when raw is not an http URL.
func siteRoot(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
