// Package correlation extracts observable properties of a page that can
// link two domains to the same operator or the same server: favicon and
// error page hashes, server signatures, header ordering, tracker ids, PGP
// keys, CMS fingerprints, cookie names and image EXIF metadata.
//
// Facts are (domain, type, value) triples. Two domains that share a fact
// are candidates for shared infrastructure; the join is done by the store.
package correlation
