// Package uriutil normalizes request targets and derives the pool key
// and wire-level addressing (HTTP/1.1 request-target, HTTP/2
// pseudo-headers) from them.
package uriutil

import (
	"net/url"
	"strings"

	"github.com/arn-dev/httpagent/internal/herr"
	"golang.org/x/net/idna"
)

// PoolKey identifies a reusable connection class: scheme, host, port.
type PoolKey struct {
	Scheme string
	Host   string
	Port   string
}

func (k PoolKey) String() string {
	return k.Scheme + "://" + k.Host + ":" + k.Port
}

var defaultPort = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalized is the result of parsing and canonicalizing a request URI.
type Normalized struct {
	URL  *url.URL
	Key  PoolKey
	Host string // lowercased, IDNA-normalized hostname, no port
}

// Normalize parses raw, rejects non-absolute URIs and unsupported
// schemes, and derives the PoolKey.
func Normalize(raw string) (*Normalized, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, herr.New(herr.InvalidURI, "parse", err)
	}
	if !u.IsAbs() {
		return nil, herr.New(herr.InvalidURI, "parse", errNotAbsolute)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, herr.New(herr.InvalidURI, "parse", errUnsupportedScheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, herr.New(herr.InvalidURI, "parse", errEmptyHost)
	}
	lowered, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		// Not every valid hostname round-trips through strict IDNA
		// (e.g. bracketed IPv6 literals); fall back to a plain lowercase.
		lowered = strings.ToLower(host)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort[scheme]
	}
	u.Scheme = scheme
	return &Normalized{
		URL:  u,
		Host: lowered,
		Key:  PoolKey{Scheme: scheme, Host: lowered, Port: port},
	}, nil
}

// RequestTarget builds the HTTP/1.1 request-target line component
// ("/path?query") per RFC 7230.
func (n *Normalized) RequestTarget() string {
	rt := n.URL.RequestURI()
	if rt == "" {
		return "/"
	}
	return rt
}

// Authority returns the host[:port] to use for Host / :authority,
// omitting the port when it is the scheme's default.
func (n *Normalized) Authority() string {
	if defaultPort[n.Key.Scheme] == n.Key.Port {
		return n.Host
	}
	return n.Host + ":" + n.Key.Port
}

// PseudoHeaders returns the HTTP/2 pseudo-header set for this target.
func (n *Normalized) PseudoHeaders(method string) [4][2]string {
	return [4][2]string{
		{":method", method},
		{":scheme", n.Key.Scheme},
		{":authority", n.Authority()},
		{":path", n.RequestTarget()},
	}
}

type uriErr string

func (e uriErr) Error() string { return string(e) }

const (
	errNotAbsolute       = uriErr("uri is not absolute")
	errUnsupportedScheme = uriErr("unsupported scheme")
	errEmptyHost         = uriErr("empty host")
)
