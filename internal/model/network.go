package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNetwork is returned when a network name cannot be parsed.
var ErrUnknownNetwork = errors.New("unknown network")

// Network identifies an anonymity network transport.
//
// Design decision: Network is supplied by the caller from transport context
// (the proxy a page was fetched through, or the configuration section a seed
// came from). Components never guess the network from an address string,
// except discovery, which must route foreign links found inside a page.
type Network int

const (
	// NetworkTor is the onion-routed network (.onion).
	NetworkTor Network = iota

	// NetworkI2P is the garlic-routed network (.i2p, .b32.i2p).
	NetworkI2P

	// NetworkHyphanet is the distributed-storage network (USK@, SSK@, CHK@ keys).
	// Formerly known as Freenet.
	NetworkHyphanet

	// NetworkLokinet is the onion-routed mixnet built on oxen service nodes (.loki).
	NetworkLokinet

	// NetworkZeroNet is retained as a disabled variant.
	// It is classifiable but never scheduled and never counted toward limits.
	NetworkZeroNet
)

// networkNames maps each network to its configuration and storage name.
var networkNames = map[Network]string{
	NetworkTor:      "tor",
	NetworkI2P:      "i2p",
	NetworkHyphanet: "hyphanet",
	NetworkLokinet:  "lokinet",
	NetworkZeroNet:  "zeronet",
}

// Networks returns every known network in a stable order.
func Networks() []Network {
	return []Network{NetworkTor, NetworkI2P, NetworkHyphanet, NetworkLokinet, NetworkZeroNet}
}

// String returns the lowercase network name.
func (n Network) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return "unknown"
}

// Schedulable reports whether workers may ever be started for the network.
func (n Network) Schedulable() bool {
	return n != NetworkZeroNet && n.Valid()
}

// Valid reports whether n is one of the declared networks.
func (n Network) Valid() bool {
	_, ok := networkNames[n]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (n Network) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Network) UnmarshalText(text []byte) error {
	parsed, err := ParseNetwork(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// ParseNetwork converts a network name to a Network.
// "freenet" is accepted as an alias of hyphanet.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tor", "onion":
		return NetworkTor, nil
	case "i2p":
		return NetworkI2P, nil
	case "hyphanet", "freenet":
		return NetworkHyphanet, nil
	case "lokinet", "loki":
		return NetworkLokinet, nil
	case "zeronet":
		return NetworkZeroNet, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// Tier is the permanence class of an address.
type Tier int

const (
	// TierCryptographic addresses are derived from a key or hash.
	// They are permanent for the lifetime of that key and cannot be reassigned.
	TierCryptographic Tier = iota

	// TierAliasable addresses are human-assigned names resolved through an
	// addressbook or naming service. They can be reassigned or contested.
	TierAliasable
)

// Weight returns the priority weight of the tier.
func (t Tier) Weight() float64 {
	if t == TierCryptographic {
		return 2.0
	}
	return 1.0
}

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierCryptographic:
		return "cryptographic"
	case TierAliasable:
		return "aliasable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
