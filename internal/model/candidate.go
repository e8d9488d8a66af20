package model

import "fmt"

// DiscoveryMethod records how a candidate address was found.
type DiscoveryMethod int

const (
	// MethodSeed marks operator supplied addresses.
	MethodSeed DiscoveryMethod = iota

	// MethodExplicitLink marks <a href> targets.
	MethodExplicitLink

	// MethodSourceMining marks addresses found by scanning raw response bytes
	// (scripts, comments, data attributes, hidden elements).
	MethodSourceMining

	// MethodFormSpidering marks synthetic query URLs built from search forms.
	MethodFormSpidering

	// MethodPatternMutation marks neighbours of numeric URL segments.
	MethodPatternMutation

	// MethodInfrastructureProbe marks well-known paths and URLs extracted
	// from robots.txt and sitemaps.
	MethodInfrastructureProbe

	// MethodCorrelated marks cryptographic identities harvested from
	// response headers of an aliased site.
	MethodCorrelated
)

var methodNames = []string{
	MethodSeed:                "seed",
	MethodExplicitLink:        "explicit_link",
	MethodSourceMining:        "source_mining",
	MethodFormSpidering:       "form_spidering",
	MethodPatternMutation:     "pattern_mutation",
	MethodInfrastructureProbe: "infrastructure_probe",
	MethodCorrelated:          "correlated",
}

// String returns the snake_case method name used in storage and logs.
func (m DiscoveryMethod) String() string {
	if int(m) >= 0 && int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (m DiscoveryMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseDiscoveryMethod converts a stored method name back to a DiscoveryMethod.
func ParseDiscoveryMethod(name string) (DiscoveryMethod, error) {
	for i, n := range methodNames {
		if n == name {
			return DiscoveryMethod(i), nil
		}
	}
	return 0, fmt.Errorf("unknown discovery method %q", name)
}

// Status is the lifecycle state of a candidate.
type Status int

const (
	// StatusPending candidates wait in the frontier.
	StatusPending Status = iota

	// StatusInFlight candidates are held by a worker.
	StatusInFlight

	// StatusDone candidates were fetched and persisted.
	StatusDone

	// StatusDead candidates have a DeadEntry and never re-enter the frontier.
	StatusDead
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusDone:
		return "done"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Candidate is a unit of crawl work.
//
// Tier and Priority are assigned once, when the frontier admits the
// candidate, and are never recomputed afterwards. Retries keep the original
// priority.
type Candidate struct {
	// RawAddress is the address as it was found or supplied.
	RawAddress string `json:"raw_address"`

	// CanonicalAddress is the network-specific normal form used for
	// deduplication. Set by the classifier.
	CanonicalAddress string `json:"canonical_address"`

	// Network is the transport the address belongs to.
	Network Network `json:"network"`

	// Domain is the host (or Hyphanet site name) of CanonicalAddress.
	// Per-domain limits and probing flags are keyed by it.
	Domain string `json:"domain"`

	// Depth is the number of hops from a seed.
	Depth int `json:"depth"`

	// SourceAddress is the canonical address that yielded this candidate.
	// Empty for seeds.
	SourceAddress string `json:"source_address,omitempty"`

	Tier       Tier            `json:"tier"`
	Method     DiscoveryMethod `json:"method"`
	Priority   float64         `json:"priority"`
	Status     Status          `json:"-"`
	RetryCount int             `json:"retry_count"`

	// Seq is the admission sequence number used as a FIFO tie-break.
	Seq uint64 `json:"-"`
}

// Priority computes tier_weight / (depth + 2).
func Priority(tier Tier, depth int) float64 {
	if depth < 0 {
		depth = 0
	}
	return tier.Weight() / float64(depth+2)
}

// Derive builds an unclassified child candidate found on the page of c.
// Depth is one more than c and SourceAddress points back at c.
func (c Candidate) Derive(raw string, network Network, method DiscoveryMethod) Candidate {
	return Candidate{
		RawAddress:    raw,
		Network:       network,
		Depth:         c.Depth + 1,
		SourceAddress: c.CanonicalAddress,
		Method:        method,
	}
}
