// Package config loads and validates the darkcrawl configuration: crawl
// limits, frontier and discovery settings, and one block per network with
// its proxies, concurrency, politeness delay and timeouts.
package config
