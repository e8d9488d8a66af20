package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// PageResult is a successful fetch handed from the transport to discovery,
// correlation and persistence.
//
// Design decision: We store both raw bytes and parsed fields because:
// 1. Raw bytes are needed for source mining and binary analysis (favicons, EXIF)
// 2. Parsed fields (links, forms, meta tags) are shared by discovery and correlation
// 3. Parsing once per page keeps the worker loop cheap
//
// The parsed fields are empty until crawler.Populate has run.
type PageResult struct {
	// Address is the canonical address that was requested.
	Address string `json:"address"`

	// FinalAddress is the URL after redirects. Equal to Address when the
	// transport did not follow any redirect.
	FinalAddress string `json:"final_address"`

	// Network is the transport the page was fetched through.
	Network Network `json:"network"`

	// Domain is the domain of Address.
	Domain string `json:"domain"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains all HTTP response headers in canonical form.
	Headers http.Header `json:"headers"`

	// HeaderOrder lists header names in the order the server sent them,
	// lowercased. Servers emit headers in a stable, implementation specific
	// order, which makes the order itself a fingerprint.
	HeaderOrder []string `json:"header_order,omitempty"`

	// ContentType is the media type without parameters, lowercased.
	ContentType string `json:"content_type"`

	// Body is the response body, truncated at the configured size limit.
	Body []byte `json:"-"`

	// Elapsed is the wall time of the fetch.
	Elapsed time.Duration `json:"elapsed"`

	// FetchedAt is when the response completed.
	FetchedAt time.Time `json:"fetched_at"`

	// Title is the page title from <title>.
	Title string `json:"title,omitempty"`

	// Text is the visible text of the page with whitespace collapsed,
	// truncated for storage. Searched by the search command.
	Text string `json:"text,omitempty"`

	// Links contains resolved <a href> targets.
	Links []string `json:"links,omitempty"`

	// Forms contains all HTML forms found on the page.
	Forms []Form `json:"forms,omitempty"`

	// MetaTags maps meta name (or property) to content.
	MetaTags map[string]string `json:"meta_tags,omitempty"`

	// Comments contains HTML comment bodies.
	Comments []string `json:"comments,omitempty"`

	// Scripts contains resolved script sources.
	Scripts []string `json:"scripts,omitempty"`

	// Icons contains resolved <link rel="icon"> targets.
	Icons []string `json:"icons,omitempty"`
}

// Form represents an HTML form element.
type Form struct {
	// Action is the resolved action URL. Empty actions resolve to the page URL.
	Action string `json:"action"`

	// Method is the upper-cased HTTP method. Defaults to GET.
	Method string `json:"method"`

	// Role is the form's role attribute ("search" marks search forms).
	Role string `json:"role,omitempty"`

	// Inputs contains the form's named fields.
	Inputs []FormInput `json:"inputs,omitempty"`
}

// FormInput represents an input field in a form.
type FormInput struct {
	// Type is the input type (text, password, hidden, etc.).
	Type string `json:"type"`

	// Name is the input's name attribute.
	Name string `json:"name"`

	// Value is the input's default value.
	Value string `json:"value,omitempty"`
}

// Hash returns the hex SHA-256 of the body, or "" for an empty body.
func (p *PageResult) Hash() string {
	if len(p.Body) == 0 {
		return ""
	}
	sum := sha256.Sum256(p.Body)
	return hex.EncodeToString(sum[:])
}

// Header returns the first value of the named header.
func (p *PageResult) Header(name string) string {
	if p.Headers == nil {
		return ""
	}
	return p.Headers.Get(name)
}

// URL returns FinalAddress when set, otherwise Address.
func (p *PageResult) URL() string {
	if p.FinalAddress != "" {
		return p.FinalAddress
	}
	return p.Address
}

// IsHTML returns true if the content type indicates HTML.
func (p *PageResult) IsHTML() bool {
	return p.ContentType == "text/html" || p.ContentType == "application/xhtml+xml"
}

// IsImage returns true if the content type indicates an image.
func (p *PageResult) IsImage() bool {
	return strings.HasPrefix(p.ContentType, "image/")
}

// IsText returns true for any textual body worth scanning for addresses.
func (p *PageResult) IsText() bool {
	if strings.HasPrefix(p.ContentType, "text/") {
		return true
	}
	switch p.ContentType {
	case "application/xhtml+xml", "application/javascript", "application/json",
		"application/xml", "application/x-javascript", "":
		return true
	}
	return false
}
