// Package scheduler runs the crawl: one worker pool per enabled network,
// each draining its frontier partition through that network's proxies.
//
// A fetched page goes through the crawl pipeline. A failed fetch is retried
// with its priority unchanged while the error is transient and the retry
// budget lasts, and is dead-lettered exactly once otherwise.
package scheduler
