package classify

import (
	"net"
	"net/url"
	"strings"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Sniff guesses the network of an address from its shape.
//
// Classify never calls Sniff. It exists for the two places that have no
// transport context: operator seed lists and foreign links found inside a
// fetched page (an onion page linking to an eepsite). The result only picks
// which network's rules to try; Classify still has the final word.
func Sniff(raw string) (model.Network, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	if strings.HasPrefix(lower, "hyphanet:") || strings.HasPrefix(lower, "freenet:") {
		return model.NetworkHyphanet, true
	}
	if strings.HasPrefix(lower, "zeronet:") {
		return model.NetworkZeroNet, true
	}
	if hyphanetKey.MatchString(strings.TrimLeft(raw, "/")) {
		return model.NetworkHyphanet, true
	}

	candidate := lower
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return 0, false
	}

	host := strings.TrimSuffix(u.Hostname(), ".")
	switch {
	case strings.HasSuffix(host, ".onion"):
		return model.NetworkTor, true
	case strings.HasSuffix(host, ".i2p"):
		return model.NetworkI2P, true
	case strings.HasSuffix(host, ".loki"):
		return model.NetworkLokinet, true
	case strings.HasSuffix(host, ".bit"):
		return model.NetworkZeroNet, true
	}

	// A key path only means Hyphanet on a local FProxy gateway.
	if gatewayHost(host) && hyphanetKey.MatchString(strings.TrimPrefix(u.Path, "/")) {
		return model.NetworkHyphanet, true
	}
	return 0, false
}

// gatewayHost reports whether host can serve FProxy: the loopback interface
// or the placeholder origin relative Hyphanet links are resolved against.
func gatewayHost(host string) bool {
	if host == "localhost" || host == GatewayPlaceholderHost {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SniffAndClassify runs Sniff followed by Classify.
func SniffAndClassify(raw string) (model.Network, string, model.Tier, error) {
	network, ok := Sniff(raw)
	if !ok {
		return 0, "", 0, ErrUnknownFormat
	}
	canonical, tier, err := Classify(network, raw)
	if err != nil {
		return 0, "", 0, err
	}
	return network, canonical, tier, nil
}
