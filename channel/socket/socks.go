package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/proxy"
)

// NewSOCKSDialer builds a Dialer that CONNECTs to addr through a SOCKS
// proxy at proxyAddr. The SOCKS5 handshake (with optional user/password
// auth) is tried first; when the server answers the greeting with a
// protocol version other than 5 the dial is retried as a SOCKS4 CONNECT
// (SOCKS4a when the target host is not an IPv4 literal). auth may be nil
// for an anonymous proxy; SOCKS4 uses auth.User as the userid field.
func NewSOCKSDialer(proxyAddr string, auth *proxy.Auth) (Dialer, error) {
	five, err := proxy.SOCKS5("tcp", proxyAddr, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	return &socksDialer{proxyAddr: proxyAddr, auth: auth, five: five}, nil
}

// socksDialer chains a SOCKS5 attempt with the SOCKS4/4a fallback so
// TCPChannel's cancellable connect loop works unchanged whether or not a
// proxy is in the chain.
type socksDialer struct {
	proxyAddr string
	auth      *proxy.Auth
	five      proxy.Dialer
}

func (d *socksDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var conn net.Conn
	var err error
	if cd, ok := d.five.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, network, addr)
	} else {
		conn, err = d.five.Dial(network, addr)
	}
	if err == nil {
		return conn, nil
	}
	if !isVersionMismatch(err) {
		return nil, err
	}
	return d.dialSOCKS4(ctx, addr)
}

// isVersionMismatch recognises the SOCKS5 client's complaint about a non-5
// version byte in the greeting reply, the condition that selects the
// SOCKS4 fallback. The library reports it only through the error text.
func isVersionMismatch(err error) bool {
	return strings.Contains(err.Error(), "unexpected protocol version")
}

// SOCKS4 reply codes.
const (
	socks4Granted  = 0x5A
	socks4Rejected = 0x5B
)

// dialSOCKS4 performs a SOCKS4 CONNECT, or SOCKS4a (hostname carried after
// the userid, IP field set to 0.0.0.1) when host does not parse as IPv4.
// The frame is four fixed bytes, an IPv4 address and one or two
// NUL-terminated strings.
func (d *socksDialer) dialSOCKS4(ctx context.Context, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socket: bad port in %q: %w", addr, err)
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, err
	}

	req := []byte{4, 1, byte(port >> 8), byte(port)}
	ip := net.ParseIP(host)
	if ip != nil {
		ip = ip.To4()
	}
	if ip != nil {
		req = append(req, ip...)
	} else {
		// 4a marker address 0.0.0.1, hostname follows the userid.
		req = append(req, 0, 0, 0, 1)
	}
	if d.auth != nil {
		req = append(req, d.auth.User...)
	}
	req = append(req, 0)
	if ip == nil {
		req = append(req, host...)
		req = append(req, 0)
	}

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}
	var reply [8]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		conn.Close()
		return nil, err
	}
	if reply[1] != socks4Granted {
		conn.Close()
		return nil, fmt.Errorf("socket: SOCKS4 request refused with code 0x%02x", reply[1])
	}
	return conn, nil
}

var _ Dialer = (*socksDialer)(nil)
