package dialer

import (
	"context"
	"net"
)

// ResolveConfig overrides the default system resolver: a static-hosts
// table checked before any lookup, and/or a specific DNS server to
// query instead of the system-configured one.
type ResolveConfig struct {
	CustomDNSServer string
	Network         string // "ip", "ip4", or "ip6"; default "ip"
	StaticHosts     map[string]string
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	hosts := make(map[string]string, len(c.StaticHosts))
	for k, v := range c.StaticHosts {
		hosts[k] = v
	}
	return &ResolveConfig{CustomDNSServer: c.CustomDNSServer, Network: c.Network, StaticHosts: hosts}
}

// dnsServerCtx carries the per-call DNS server override through to the
// resolver's Dial func without widening the exported context-key
// surface: the key type is unexported and non-comparable to anything
// a caller could construct.
type dnsServerCtx struct {
	context.Context
	server string
}

var dnsServerCtxKey = &dnsServerCtx{nil, "dns-server"}

func (c dnsServerCtx) Value(key interface{}) interface{} {
	if key == dnsServerCtxKey {
		return c.server
	}
	return c.Context.Value(key)
}

var zeroDialer net.Dialer

var customServerResolver = net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		if v, ok := ctx.Value(dnsServerCtxKey).(string); ok && v != "" {
			return zeroDialer.DialContext(ctx, network, v)
		}
		return zeroDialer.DialContext(ctx, network, address)
	},
}

// lookup resolves host to IPs, honoring a static-hosts override and a
// custom DNS server when cfg supplies them.
func lookup(ctx context.Context, cfg *ResolveConfig, host string) ([]net.IP, error) {
	if cfg != nil {
		if addr, ok := cfg.StaticHosts[host]; ok {
			if ip := net.ParseIP(addr); ip != nil {
				return []net.IP{ip}, nil
			}
			host = addr
		}
	}
	network := "ip"
	var dns string
	if cfg != nil {
		if cfg.Network != "" {
			network = cfg.Network
		}
		dns = cfg.CustomDNSServer
	}
	return customServerResolver.LookupIP(dnsServerCtx{ctx, dns}, network, host)
}
