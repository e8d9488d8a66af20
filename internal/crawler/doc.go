// Package crawler turns fetched HTML into structured page data.
//
// # Components
//
//   - Parser: walks the HTML DOM and extracts links, forms, scripts, icons,
//     meta tags and comments, resolving relative URLs
//   - Populate: runs the Parser over a model.PageResult in place
//   - Scope: path-based ignore and follow patterns applied to discovered URLs
//
// Fetching lives in the transport package and scheduling in the scheduler
// package. This package performs no I/O.
//
// # Hyphanet
//
// Hyphanet pages have no host. Relative links are resolved against
// HyphanetBaseURL plus the key path, which yields gateway-style URLs the
// classifier maps back to canonical keys.
package crawler
