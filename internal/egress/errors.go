package egress

import "errors"

// Egress errors.
var (
	// ErrInvalidProxyAddress is returned when a proxy address is not host:port,
	// optionally prefixed with a scheme.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected [scheme://]host:port")

	// ErrUnsupportedScheme is returned for proxy schemes other than socks5 and http.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme: use socks5 or http")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak
	// SOCKS5 without authentication.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when the proxy cannot be reached.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrTorNotRunning is returned when the embedded Tor daemon is used
	// before Start succeeded.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the result of checking a proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy answered as expected.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy answered with another protocol.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the proxy did not answer in time.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
