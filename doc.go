// Package httpagent is a connection-pooling, protocol-negotiating
// HTTP client: build a Request, send it through an Agent, consume the
// Response body. The Agent owns a per-origin connection pool,
// transparently speaks HTTP/1.1 or HTTP/2 depending on what the peer
// negotiates, runs bodies through a layered codec (chunked framing,
// gzip, charset transcoding), and follows redirects and retries
// transport faults according to configurable policies.
//
//	agent := httpagent.New()
//	resp, err := agent.Send(ctx, &httpagent.Request{
//		Method: "GET",
//		URL:    "https://example.com/",
//	})
//
// A zero-configuration Agent (httpagent.New with no options) applies
// the documented defaults: five redirects, five transport retries,
// automatic gzip and charset decoding, a small per-host idle pool.
package httpagent
