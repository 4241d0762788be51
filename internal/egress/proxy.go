package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultCheckTimeout bounds a proxy check. It is a connectivity check, not
// a request through the proxy, so it is short.
const DefaultCheckTimeout = 5 * time.Second

// Proxy schemes.
const (
	SchemeSOCKS5 = "socks5"
	SchemeHTTP   = "http"
)

// Proxy is a browser egress proxy.
type Proxy struct {
	Scheme string
	Addr   string
}

// ParseProxy parses "socks5://host:port", "http://host:port" or a bare
// "host:port", which means SOCKS5.
func ParseProxy(raw string) (Proxy, error) {
	raw = strings.TrimSpace(raw)
	scheme := SchemeSOCKS5
	addr := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Proxy{}, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, raw)
		}
		scheme = strings.ToLower(u.Scheme)
		addr = u.Host
		if u.Path != "" && u.Path != "/" {
			return Proxy{}, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, raw)
		}
	}

	switch scheme {
	case SchemeSOCKS5, "socks5h":
		scheme = SchemeSOCKS5
	case SchemeHTTP:
	default:
		return Proxy{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	if !isValidProxyAddress(addr) {
		return Proxy{}, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, raw)
	}
	return Proxy{Scheme: scheme, Addr: addr}, nil
}

// isValidProxyAddress checks for host:port with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// URL returns the proxy in the form Chrome's --proxy-server flag accepts.
func (p Proxy) URL() string {
	return p.Scheme + "://" + p.Addr
}

// String returns the proxy URL.
func (p Proxy) String() string {
	return p.URL()
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03
)

// Check verifies that the proxy answers. A SOCKS5 proxy must complete a
// no-auth handshake and answer a CONNECT request for target ("host:port");
// the CONNECT reply code itself is not judged. An HTTP proxy only needs to
// accept a TCP connection.
func (p Proxy) Check(ctx context.Context, target string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if p.Scheme != SchemeSOCKS5 {
		return ProxyStatusOK
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	// 0xFF means the proxy insists on authentication.
	if authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	host, portText, err := net.SplitHostPort(target)
	if err != nil || len(host) > 255 {
		return ProxyStatusCannotConnect
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return ProxyStatusCannotConnect
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDomID,
		byte(len(host)),
	}
	connectReq = append(connectReq, host...)
	connectReq = append(connectReq, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version + reply + reserved + address type
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// readFailure classifies an error reading the proxy's reply.
func readFailure(err error) ProxyStatus {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

// Reach opens and closes a connection to target through a SOCKS5 proxy.
// It proves the whole route works, not just the proxy. HTTP proxies are
// not dialled.
func (p Proxy) Reach(ctx context.Context, target string) error {
	if p.Scheme != SchemeSOCKS5 {
		return nil
	}

	dialer, err := proxy.SOCKS5("tcp", p.Addr, nil, &net.Dialer{Timeout: DefaultCheckTimeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("%w: dialer has no context support", ErrProxyCannotConnect)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
	defer cancel()

	conn, err := cd.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("%w: %s via %s: %w", ErrProxyCannotConnect, target, p.Addr, err)
	}
	return conn.Close()
}

// TargetAddr returns host:port for an http(s) URL, defaulting the port
// from the scheme.
func TargetAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid target URL %q", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
