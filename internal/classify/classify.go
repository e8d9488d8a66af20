package classify

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/nao1215/darkcrawl/internal/model"
)

var (
	// i2pB32Label is the base32 destination hash of a .b32.i2p host.
	// 52 characters for plain destinations, 56 or more for encrypted leasesets.
	i2pB32Label = regexp.MustCompile(`^[a-z2-7]{52,}$`)

	// lokiKeyLabel is the z-base32 encoded ed25519 key of a SNApp.
	lokiKeyLabel = regexp.MustCompile(`^[ybndrfg8ejkmcpqxot1uwisza345h769]{52}$`)

	// dnsLabel matches a single hostname label.
	dnsLabel = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

	// zeronetSite is a bitcoin-style base58 site address.
	zeronetSite = regexp.MustCompile(`^1[1-9A-HJ-NP-Za-km-z]{25,34}$`)
)

// hostRule maps a lowercased, IDNA-mapped hostname to its tier.
type hostRule func(host string) (model.Tier, error)

// rule is one network's entry in the classification table.
type rule struct {
	classify func(raw string) (string, model.Tier, error)
	domain   func(canonical string) string
}

// rules is the per-network lookup table. Adding a network means adding one
// entry here; nothing else in the package branches on the network.
var rules = map[model.Network]rule{
	model.NetworkTor:      {classify: urlClassifier(torHost), domain: hostDomain},
	model.NetworkI2P:      {classify: urlClassifier(i2pHost), domain: hostDomain},
	model.NetworkLokinet:  {classify: urlClassifier(lokiHost), domain: hostDomain},
	model.NetworkHyphanet: {classify: classifyHyphanet, domain: hyphanetDomain},
	model.NetworkZeroNet:  {classify: classifyZeroNet, domain: zeronetDomain},
}

// Classify maps a raw address on the given network to its canonical form
// and permanence tier.
//
// Classify is pure and deterministic. The network comes from the caller's
// transport context; the address string is never used to pick a network.
// Classifying a canonical address returns it unchanged.
//
// Any failure wraps ErrUnknownFormat.
func Classify(network model.Network, raw string) (string, model.Tier, error) {
	r, ok := rules[network]
	if !ok {
		return "", 0, fmt.Errorf("%w: no rules for network %v", ErrUnknownFormat, network)
	}

	canonical, tier, err := r.classify(strings.TrimSpace(raw))
	if err != nil {
		if errors.Is(err, ErrUnknownFormat) {
			return "", 0, fmt.Errorf("%v address %q: %w", network, raw, err)
		}
		return "", 0, fmt.Errorf("%w: %v address %q: %w", ErrUnknownFormat, network, raw, err)
	}
	return canonical, tier, nil
}

// Domain returns the per-domain key of a canonical address: the hostname for
// URL based networks, the site name for Hyphanet and the site address for
// ZeroNet. It returns "" when the address cannot be parsed.
func Domain(network model.Network, canonical string) string {
	r, ok := rules[network]
	if !ok {
		return ""
	}
	return r.domain(canonical)
}

// urlClassifier builds a classifier for http(s) addressed networks.
func urlClassifier(rule hostRule) func(string) (string, model.Tier, error) {
	return func(raw string) (string, model.Tier, error) {
		u, err := parseHTTPURL(raw)
		if err != nil {
			return "", 0, err
		}

		host, err := idna.Lookup.ToASCII(strings.TrimSuffix(u.Hostname(), "."))
		if err != nil {
			return "", 0, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
		}
		host = strings.ToLower(host)

		tier, err := rule(host)
		if err != nil {
			return "", 0, err
		}

		return canonicalURL(u, host), tier, nil
	}
}

// parseHTTPURL accepts bare hosts and http(s) URLs.
func parseHTTPURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty address", ErrUnknownFormat)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnknownFormat)
	}
	return u, nil
}

// canonicalURL lowercases the scheme, drops userinfo, the fragment and the
// default port, and normalizes the path ("" -> "/", no trailing slash on
// non-root paths). The query string is kept as is.
func canonicalURL(u *url.URL, host string) string {
	scheme := strings.ToLower(u.Scheme)

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	out := scheme + "://" + host + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// torHost accepts only v3 onion hosts. Tor has no aliasable tier.
func torHost(host string) (model.Tier, error) {
	if !strings.HasSuffix(host, onionSuffix) {
		return 0, fmt.Errorf("%w: not an onion host", ErrUnknownFormat)
	}
	label := lastLabel(strings.TrimSuffix(host, onionSuffix))
	if onionV2Label.MatchString(label) {
		return 0, ErrDeprecatedOnion
	}
	if len(label) != onionV3Length || !validOnionV3Label(label) {
		return 0, fmt.Errorf("%w: invalid v3 onion label", ErrUnknownFormat)
	}
	return model.TierCryptographic, nil
}

// i2pHost accepts .b32.i2p destinations (cryptographic) and addressbook
// names (aliasable).
func i2pHost(host string) (model.Tier, error) {
	if strings.HasSuffix(host, ".b32.i2p") {
		label := strings.TrimSuffix(host, ".b32.i2p")
		if strings.Contains(label, ".") || !i2pB32Label.MatchString(label) {
			return 0, fmt.Errorf("%w: invalid b32 destination", ErrUnknownFormat)
		}
		return model.TierCryptographic, nil
	}
	if strings.HasSuffix(host, ".i2p") && validLabels(strings.TrimSuffix(host, ".i2p")) {
		return model.TierAliasable, nil
	}
	return 0, fmt.Errorf("%w: not an i2p host", ErrUnknownFormat)
}

// lokiHost accepts 52 character key labels (cryptographic) and ONS names
// (aliasable).
func lokiHost(host string) (model.Tier, error) {
	if !strings.HasSuffix(host, ".loki") {
		return 0, fmt.Errorf("%w: not a loki host", ErrUnknownFormat)
	}
	name := strings.TrimSuffix(host, ".loki")
	if lokiKeyLabel.MatchString(lastLabel(name)) {
		return model.TierCryptographic, nil
	}
	if validLabels(name) {
		return model.TierAliasable, nil
	}
	return 0, fmt.Errorf("%w: invalid loki name", ErrUnknownFormat)
}

// lastLabel returns the right-most DNS label of name.
func lastLabel(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// validLabels reports whether every dot separated label is a DNS label.
func validLabels(name string) bool {
	if name == "" {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if !dnsLabel.MatchString(label) {
			return false
		}
	}
	return true
}

// hostDomain returns the lowercased hostname of a canonical URL.
func hostDomain(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// classifyZeroNet accepts "zeronet:<site>/path", bare site addresses and
// .bit names. ZeroNet is never scheduled, but its addresses still show up in
// pages and are recorded with a tier.
func classifyZeroNet(raw string) (string, model.Tier, error) {
	rest := strings.TrimPrefix(raw, "zeronet:")
	rest = strings.TrimPrefix(rest, "//")
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}

	site, path, _ := strings.Cut(rest, "/")
	for strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	var tier model.Tier
	switch {
	case zeronetSite.MatchString(site):
		tier = model.TierCryptographic
	case strings.HasSuffix(strings.ToLower(site), ".bit") && validLabels(strings.TrimSuffix(strings.ToLower(site), ".bit")):
		site = strings.ToLower(site)
		tier = model.TierAliasable
	default:
		return "", 0, fmt.Errorf("%w: not a zeronet site", ErrUnknownFormat)
	}

	canonical := "zeronet:" + site + "/"
	if path != "" {
		canonical += path
	}
	return canonical, tier, nil
}

// zeronetDomain returns the site part of a canonical ZeroNet address.
func zeronetDomain(canonical string) string {
	site, _, _ := strings.Cut(strings.TrimPrefix(canonical, "zeronet:"), "/")
	return site
}
