package model

import "time"

// CorrelationType names an observable property shared between domains.
type CorrelationType string

// Correlation fact types.
const (
	CorrelationFaviconHash     CorrelationType = "favicon_hash"
	CorrelationServerSignature CorrelationType = "server_signature"
	CorrelationDiscoveredAlias CorrelationType = "discovered_alias"

	CorrelationServerHeader    CorrelationType = "server_header"
	CorrelationPoweredBy       CorrelationType = "powered_by"
	CorrelationETag            CorrelationType = "etag"
	CorrelationHeaderOrderHash CorrelationType = "header_order_hash"
	CorrelationGoogleUA        CorrelationType = "google_analytics_ua"
	CorrelationGoogleG         CorrelationType = "google_analytics_g"
	CorrelationGoogleTag       CorrelationType = "google_tag_manager"
	CorrelationFacebookPixel   CorrelationType = "facebook_pixel"
	CorrelationPGPKeyHash      CorrelationType = "pgp_key_hash"
	CorrelationMetaGenerator   CorrelationType = "meta_generator"
	CorrelationCMS             CorrelationType = "cms"
	CorrelationCookieName      CorrelationType = "cookie_name"
	CorrelationFramework       CorrelationType = "framework_cookie"
	CorrelationErrorPageHash   CorrelationType = "error_page_hash"
	CorrelationExifCamera      CorrelationType = "exif_camera"
	CorrelationExifSerial      CorrelationType = "exif_serial"
	CorrelationExifSoftware    CorrelationType = "exif_software"
	CorrelationExifAuthor      CorrelationType = "exif_author"
)

// CorrelationFact states that a domain exhibits an observable property.
// Two domains sharing a fact are evidence of shared infrastructure.
// Facts are unique as a (Domain, Type, Value) triple and are only inserted,
// never updated.
type CorrelationFact struct {
	Domain string          `json:"domain"`
	Type   CorrelationType `json:"type"`
	Value  string          `json:"value"`
}

// DeadReason explains why a candidate was dead-lettered.
type DeadReason string

const (
	// DeadPermanent is a failure that retrying cannot fix (4xx, malformed).
	DeadPermanent DeadReason = "permanent"

	// DeadRetriesExhausted is a transient failure repeated max_retries times.
	DeadRetriesExhausted DeadReason = "retries_exhausted"
)

// DeadEntry is the terminal record of a candidate that will not be retried.
type DeadEntry struct {
	CanonicalAddress string     `json:"canonical_address"`
	Network          Network    `json:"network"`
	Domain           string     `json:"domain"`
	Reason           DeadReason `json:"reason"`
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error"`
	LastAttemptAt    time.Time  `json:"last_attempt_at"`
}
