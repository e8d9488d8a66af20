package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/nao1215/darkcrawl/internal/model"
)

// ErrorKind is the failure class of a fetch.
type ErrorKind int

const (
	// KindOther is any failure not matched by a more specific kind.
	KindOther ErrorKind = iota
	// KindTimeout is a connect or read deadline.
	KindTimeout
	// KindConnectionRefused is a refused TCP connection.
	KindConnectionRefused
	// KindConnectionReset is a connection dropped mid-exchange.
	KindConnectionReset
	// KindProxyFailure is a proxy-level failure: SOCKS replies, gateway
	// errors, tunnels not built yet.
	KindProxyFailure
	// KindTLSFailure is a TLS handshake or certificate failure.
	KindTLSFailure
	// KindHTTPError is a non-2xx HTTP status. StatusCode holds it.
	KindHTTPError
	// KindMalformed is an address or response that cannot be used.
	KindMalformed
)

var kindNames = []string{
	KindOther:             "other",
	KindTimeout:           "timeout",
	KindConnectionRefused: "connection_refused",
	KindConnectionReset:   "connection_reset",
	KindProxyFailure:      "proxy_failure",
	KindTLSFailure:        "tls_failure",
	KindHTTPError:         "http_error",
	KindMalformed:         "malformed",
}

// String returns the snake_case kind name.
func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// FetchError is the error returned by Client.Fetch. Match it with errors.As.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Address    string
	Err        error

	// Page is the response of an HTTP error, kept so error pages can still
	// be fingerprinted. Nil for other kinds.
	Page *model.PageResult
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Kind == KindHTTPError {
		return fmt.Sprintf("fetch %s: http %d", e.Address, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Address, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Address, e.Kind)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether a retry may succeed.
//
// Transient: timeouts, refused and reset connections, proxy failures,
// HTTP 5xx, 408, 429 and unclassified errors. Permanent: other HTTP
// statuses, malformed addresses and TLS failures.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionRefused, KindConnectionReset, KindProxyFailure, KindOther:
		return true
	case KindHTTPError:
		return e.StatusCode >= 500 ||
			e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsTransient reports whether err is a transient FetchError. Errors that are
// not FetchErrors are treated as transient.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return true
}

// classifyError maps a transport error to a FetchError.
func classifyError(address string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: errorKind(err), Address: address, Err: err}
}

func errorKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindConnectionReset
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var alert tls.AlertError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &alert) {
		return KindTLSFailure
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var parseErr url.InvalidHostError
		if errors.As(urlErr.Err, &parseErr) {
			return KindMalformed
		}
		if urlErr.Op == "parse" || strings.Contains(urlErr.Error(), "unsupported protocol scheme") {
			return KindMalformed
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "socks"), strings.Contains(msg, "proxyconnect"),
		strings.Contains(msg, "tunnel"), strings.Contains(msg, "host unreachable"),
		strings.Contains(msg, "network unreachable"):
		return KindProxyFailure
	case strings.Contains(msg, "tls:"), strings.Contains(msg, "x509:"):
		return KindTLSFailure
	case strings.Contains(msg, "connection refused"):
		return KindConnectionRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return KindConnectionReset
	}
	return KindOther
}

// statusError returns a FetchError for a non-success HTTP status, or nil.
func statusError(address string, code int) *FetchError {
	if code >= 200 && code < 300 {
		return nil
	}
	return &FetchError{Kind: KindHTTPError, StatusCode: code, Address: address}
}
