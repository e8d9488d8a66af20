package transport

import "errors"

// Proxy errors.
//
// Design decision: We define specific error values rather than wrapping all
// errors generically. The scheduler uses them to tell a proxy that never came
// up (skip the pool) from a site that is down (retry the candidate).
var (
	// ErrProxyWrongType is returned when the configured proxy address responds
	// but does not speak the protocol the network needs (SOCKS5 for Tor and
	// Lokinet, HTTP for I2P and the Hyphanet gateway).
	ErrProxyWrongType = errors.New("proxy does not speak the expected protocol")

	// ErrProxyCannotConnect is returned when we cannot establish a TCP
	// connection to the proxy address. This usually means the daemon is not
	// running or the address is incorrect.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the connection to the proxy times out.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrUnsupportedNetwork is returned for networks without a transport.
	ErrUnsupportedNetwork = errors.New("network has no transport")

	// ErrNotRunning is returned when the embedded Tor daemon is used before
	// Start or after Stop.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus represents the result of checking a proxy endpoint.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy answered with the expected protocol.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the connection succeeded but the
	// endpoint speaks a different protocol.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates we could not establish a connection.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the connection attempt timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyWrongType
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
