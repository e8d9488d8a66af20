// Package dedup tracks which canonical addresses have ever been admitted to
// the crawl, with a bloom filter in front of a durable uniqueness check.
package dedup
