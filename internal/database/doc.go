// Package database provides SQLite-based storage for darkcrawl.
//
// The CrawlDB stores:
//   - seen addresses, which double as the durable crawl queue
//   - fetched pages and the links found on them
//   - correlation facts, insert-only
//   - dead letters, at most one per address
//   - crawl runs
//
// Design decision: SQLite through modernc.org/sqlite. The database is a
// single file next to the crawler, the driver is CGO-free, and WAL mode gives
// concurrent readers while workers write.
package database
