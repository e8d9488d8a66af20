package classify

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/darkcrawl/internal/model"
)

// HyphanetScheme prefixes canonical Hyphanet addresses.
const HyphanetScheme = "hyphanet:"

// GatewayPlaceholderHost is the host of the origin relative links on
// Hyphanet pages are resolved against. It never resolves in DNS.
const GatewayPlaceholderHost = "fproxy.invalid"

// hyphanetKey matches a USK, SSK or CHK key: the key type, a routing key,
// a crypto key and an extra field, then an optional path.
var hyphanetKey = regexp.MustCompile(`^(?i:(usk|ssk|chk))@([A-Za-z0-9~\-]{20,},[A-Za-z0-9~\-]+,[A-Za-z0-9~\-]+)(/[^#]*)?`)

// classifyHyphanet accepts:
//
//	hyphanet:USK@<key>/<site>/<edition>/
//	freenet:SSK@<key>/<site>-<edition>/
//	CHK@<key>/<file>
//	http://127.0.0.1:8888/USK@<key>/<site>/<edition>/  (FProxy gateway URLs)
//
// Every key is cryptographic. Hyphanet has no aliasable tier.
func classifyHyphanet(raw string) (string, model.Tier, error) {
	key, err := hyphanetKeyPath(raw)
	if err != nil {
		return "", 0, err
	}

	m := hyphanetKey.FindStringSubmatch(key)
	if m == nil {
		return "", 0, fmt.Errorf("%w: not a USK, SSK or CHK key", ErrUnknownFormat)
	}

	path := m[3]
	for len(path) > 0 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return HyphanetScheme + strings.ToUpper(m[1]) + "@" + m[2] + path, model.TierCryptographic, nil
}

// hyphanetKeyPath strips the scheme or gateway prefix, leaving "XXK@...".
func hyphanetKeyPath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty address", ErrUnknownFormat)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "hyphanet:"):
		raw = raw[len("hyphanet:"):]
	case strings.HasPrefix(lower, "freenet:"):
		raw = raw[len("freenet:"):]
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnknownFormat, err)
		}
		raw = strings.TrimPrefix(u.EscapedPath(), "/")
		if u.RawQuery != "" {
			raw += "?" + u.RawQuery
		}
	case strings.Contains(lower, "://"):
		return "", ErrUnsupportedScheme
	}

	raw = strings.TrimLeft(raw, "/")
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return raw, nil
}

// HyphanetGatewayPath returns the request path for an FProxy gateway,
// "/USK@<key>/<site>/<edition>/", for a canonical Hyphanet address.
func HyphanetGatewayPath(canonical string) string {
	return "/" + strings.TrimPrefix(canonical, HyphanetScheme)
}

// hyphanetDomain returns the site name of a key: the first path segment
// after the key, or "CHK@" plus a routing key prefix for bare keys.
func hyphanetDomain(canonical string) string {
	key := strings.TrimPrefix(canonical, HyphanetScheme)
	keyPart, rest, _ := strings.Cut(key, "/")
	site, _, _ := strings.Cut(rest, "/")
	if site != "" {
		if q := strings.IndexByte(site, '?'); q >= 0 {
			site = site[:q]
		}
		return site
	}
	if len(keyPart) > 24 {
		return keyPart[:24]
	}
	return keyPart
}
