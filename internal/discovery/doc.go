// Package discovery turns a fetched page into candidate addresses.
//
// An Engine runs up to six strategies over a page: explicit links, source
// mining of the raw bytes, header alias resolution, search form spidering,
// infrastructure probing (with robots.txt and sitemap parsing) and numeric
// pattern mutation. Candidates are yielded lazily through an iterator and
// handed to the frontier one by one, so a page with thousands of links never
// materializes a candidate slice.
//
// Discovery does not deduplicate across pages and does not classify. The
// frontier does both.
package discovery
