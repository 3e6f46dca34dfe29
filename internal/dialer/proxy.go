package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/arn-dev/httpagent/internal/herr"
)

// dialViaProxy opens a connection to remote through an HTTP(S) forward
// proxy using the CONNECT method (RFC 7231 §4.3.6). Only http/https
// proxy schemes are supported; SOCKS is out of scope.
func dialViaProxy(ctx context.Context, remoteHostPort string, proxyURL *url.URL, tlsCfg *tls.Config) (net.Conn, error) {
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, herr.New(herr.ConnectFailure, "dial proxy", fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme))
	}

	proxyHostPort := hostPortOf(proxyURL)
	conn, err := zeroDialer.DialContext(ctx, "tcp", proxyHostPort)
	if err != nil {
		return nil, herr.New(herr.ConnectFailure, "dial proxy", err)
	}

	if proxyURL.Scheme == "https" {
		tc := tls.Client(conn, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, herr.New(herr.TLSError, "proxy tls handshake", err)
		}
		conn = tc
	}

	req := &http.Request{
		Method: "CONNECT",
		URL:    &url.URL{Opaque: remoteHostPort},
		Host:   remoteHostPort,
		Header: http.Header{},
	}
	if auth := proxyURL.User; auth != nil {
		req.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth.String())))
	}
	req = req.WithContext(ctx)

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, herr.New(herr.ConnectFailure, "write CONNECT", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, herr.New(herr.ConnectFailure, "read CONNECT response", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		conn.Close()
		return nil, herr.New(herr.ConnectFailure, "CONNECT tunnel", fmt.Errorf("proxy returned %s: %s", resp.Status, body))
	}
	if br.Buffered() > 0 {
		// Proxy sent bytes past the CONNECT response headers; refuse
		// rather than silently drop them.
		conn.Close()
		return nil, herr.New(herr.ProtocolError, "CONNECT tunnel", fmt.Errorf("unexpected data buffered after tunnel established"))
	}
	return conn, nil
}

func hostPortOf(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return u.Hostname() + ":443"
	default:
		return u.Hostname() + ":80"
	}
}
