package discovery

import (
	"strings"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/model"
)

// minB32Length is the length of the shortest plausible b32 header value:
// 52 base32 characters.
const minB32Length = 52

// aliasTargets returns the cryptographic addresses announced by the
// response headers of page.
func aliasTargets(page *model.PageResult) []string {
	var out []string
	for _, name := range []string{"X-I2P-DestB32", "X-I2P-Dest-B32"} {
		v := strings.TrimSpace(page.Header(name))
		if len(v) < minB32Length || !strings.Contains(strings.ToLower(v), ".b32.i2p") {
			continue
		}
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		out = append(out, v)
	}
	if v := strings.TrimSpace(page.Header("Onion-Location")); v != "" {
		out = append(out, v)
	}
	return out
}

func headerAliases(page *model.PageResult, emit emitFunc) bool {
	for _, target := range aliasTargets(page) {
		if !emit(target, model.MethodCorrelated) {
			return false
		}
	}
	return true
}

// Aliases returns the discovered_alias facts linking an aliasable source
// to the cryptographic addresses its headers announce. Each link is written
// in both directions so a shared-fact lookup from either side finds the
// other. Sources that are already cryptographic yield nothing.
func Aliases(page *model.PageResult, source model.Candidate) []model.CorrelationFact {
	if page == nil || source.Tier != model.TierAliasable || source.Domain == "" {
		return nil
	}

	var facts []model.CorrelationFact
	for _, target := range aliasTargets(page) {
		network, canonical, tier, err := classify.SniffAndClassify(target)
		if err != nil || tier != model.TierCryptographic {
			continue
		}
		crypto := classify.Domain(network, canonical)
		if crypto == "" || crypto == source.Domain {
			continue
		}
		facts = append(facts,
			model.CorrelationFact{Domain: source.Domain, Type: model.CorrelationDiscoveredAlias, Value: crypto},
			model.CorrelationFact{Domain: crypto, Type: model.CorrelationDiscoveredAlias, Value: source.Domain},
		)
	}
	return facts
}
