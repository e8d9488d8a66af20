package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Scope filters discovered URLs by path before they reach the frontier.
//
// Design decision: Scope only looks at the URL path, never the host. Which
// hosts are crawled is decided by network classification; Scope exists to
// keep workers away from paths that are known traps (logout links,
// calendars, binary archives) on every site.
type Scope struct {
	// ignore are path patterns to skip.
	ignore []string

	// follow are path patterns to keep. Empty means all paths.
	follow []string
}

// NewScope creates a Scope. Patterns use glob syntax (e.g. "/admin/*",
// "*.zip", "/logout*").
func NewScope(ignore, follow []string) *Scope {
	return &Scope{ignore: ignore, follow: follow}
}

// Allows reports whether a URL should be offered to the frontier.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it (return false)
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, keep it
//
// A nil Scope allows everything. URLs that do not parse (Hyphanet keys with
// a scheme prefix) are matched on the text after the first "/".
func (s *Scope) Allows(rawURL string) bool {
	if s == nil || (len(s.ignore) == 0 && len(s.follow) == 0) {
		return true
	}

	path := urlPath(rawURL)

	for _, pattern := range s.ignore {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.follow) > 0 {
		for _, pattern := range s.follow {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Opaque == "" {
		if u.Path == "" {
			return "/"
		}
		return u.Path
	}
	if i := strings.IndexByte(rawURL, '/'); i >= 0 {
		return rawURL[i:]
	}
	return "/"
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	// "/admin/*" also matches everything below /admin.
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Bare patterns like "logout*" match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
