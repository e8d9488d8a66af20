// Package main provides the entry point for the darkcrawl CLI.
//
// darkcrawl crawls Tor, I2P, Hyphanet and Lokinet from a set of seed
// addresses, discovers new addresses across networks and records facts that
// link domains to the same operator.
//
// Usage:
//
//	darkcrawl init
//	darkcrawl crawl --seeds seeds.txt
//	darkcrawl status
//
// See --help for all available options.
package main

func main() {
	Execute()
}
