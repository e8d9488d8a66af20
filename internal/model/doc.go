// Package model defines the core data structures shared by the crawler.
//
// This package contains the following main types:
//   - Network and Tier: transport and permanence classes of an address
//   - Candidate: a unit of crawl work owned by the frontier
//   - PageResult: a successful fetch with its parsed fields
//   - CorrelationFact: an observed property linking a domain to shared infrastructure
//   - DeadEntry: the terminal record of a candidate that will not be retried
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The frontier, discovery, correlation, scheduler and database
// packages all exchange these types, so centralizing them prevents import cycles.
package model
