package scheduler

import "errors"

var (
	// ErrNoNetworks is returned by New when no network is configured.
	ErrNoNetworks = errors.New("no network to schedule")

	// ErrNoFetchers is returned by New for a network without proxies.
	ErrNoFetchers = errors.New("network has no fetcher")

	// ErrNetworkDisabled is returned by New for a network the frontier does
	// not schedule.
	ErrNetworkDisabled = errors.New("network is not enabled in the frontier")

	// ErrUnknownSeed is returned by Seed for an address whose network
	// cannot be recognized.
	ErrUnknownSeed = errors.New("seed has no recognizable network")
)
