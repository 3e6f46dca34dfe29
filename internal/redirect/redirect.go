// Package redirect implements the redirect-following loop that sits
// between the retry loop and the exchange layer: given a request and a
// way to perform one exchange, it follows 301/302/303/307/308
// responses up to a configured budget, rewriting method and body per
// RFC 7231 §6.4, and re-applying cookies on each hop.
package redirect

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
)

// Exchanger performs one request/response exchange over a connection.
type Exchanger func(ctx context.Context, req *model.PreparedRequest, opts codec.Options) (*model.Response, error)

// CookieJar is the subset of internal/cookiejar.Jar the redirect loop
// needs: store Set-Cookie from each hop's response, and produce the
// Cookie header value for the next hop's request.
type CookieJar interface {
	Store(origin *url.URL, header http.Header)
	Lookup(target *url.URL) string
}

// Policy configures redirect behavior.
type Policy struct {
	// Cap is the maximum number of redirects to follow. 0 disables
	// redirect following: the first redirect response is returned
	// to the caller unfollowed.
	Cap int
	// DowngradeToGet controls whether a 301/302 response to a POST
	// downgrades the next request to GET, matching historical browser
	// behavior rather than the strict RFC 7231 method-preserving text.
	DowngradeToGet bool
}

// DefaultPolicy matches the documented default of 5 redirects with the
// historical 301/302 POST-to-GET downgrade enabled.
var DefaultPolicy = Policy{Cap: 5, DowngradeToGet: true}

// Follow drives req through zero or more redirects, returning the
// final response. exchange is invoked once per hop; jar may be nil to
// disable cookie handling.
func Follow(ctx context.Context, req *model.Request, opts codec.Options, policy Policy, jar CookieJar, exchange Exchanger) (*model.Response, error) {
	budget := policy.Cap
	cur := req

	for {
		prepared, err := cur.Prepare()
		if err != nil {
			return nil, err
		}

		if jar != nil {
			if cookieHeader := jar.Lookup(prepared.Target.URL); cookieHeader != "" {
				prepared.Header = prepared.Header.Clone()
				prepared.Header.Set("Cookie", cookieHeader)
			}
		}

		resp, err := exchange(ctx, prepared, opts)
		if err != nil {
			return nil, err
		}

		if jar != nil {
			jar.Store(prepared.Target.URL, resp.Header)
		}

		if !isRedirect(resp.StatusCode) {
			resp.Origin = prepared.Target.URL.String()
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			resp.Origin = prepared.Target.URL.String()
			return resp, nil
		}

		if budget <= 0 {
			if policy.Cap == 0 {
				// Redirect following is disabled outright: hand back
				// the unfollowed redirect response rather than an error.
				resp.Origin = prepared.Target.URL.String()
				return resp, nil
			}
			drainAndClose(resp.Body)
			return nil, herr.New(herr.TooManyRedirects, "redirect", nil)
		}

		nextURL, err := resolveLocation(prepared.Target.URL, location)
		if err != nil {
			drainAndClose(resp.Body)
			return nil, herr.New(herr.ProtocolError, "redirect: resolve Location", err)
		}

		nextMethod, keepBody := nextHop(cur.Method, resp.StatusCode, policy.DowngradeToGet)

		var nextBody model.BodySource = model.Empty
		if keepBody {
			if cur.Body != nil && !cur.Body.Restartable() {
				drainAndClose(resp.Body)
				return nil, herr.New(herr.BodyNotRestartable, "redirect: resend body", nil)
			}
			nextBody = cur.Body
		}

		// Drain the redirect response body before reusing or releasing
		// its connection, so an HTTP/1.1 connection is left in a state
		// where the next request on it (if pooled) starts clean.
		drainAndClose(resp.Body)

		nextHeader := cur.Header.Clone()
		if nextHeader == nil {
			nextHeader = http.Header{}
		}
		if !keepBody {
			nextHeader.Del("Content-Type")
			nextHeader.Del("Content-Length")
		}

		cur = &model.Request{
			Method: nextMethod,
			URL:    nextURL.String(),
			Header: nextHeader,
			Body:   nextBody,
			Config: cur.Config,
		}
		budget--
	}
}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

// nextHop determines the method and whether the body is resent for the
// hop following a redirect response.
func nextHop(method string, statusCode int, downgradeToGet bool) (nextMethod string, keepBody bool) {
	switch statusCode {
	case 303:
		return http.MethodGet, false
	case 307, 308:
		return method, method != http.MethodGet && method != http.MethodHead
	default: // 301, 302
		if method == http.MethodPost && downgradeToGet {
			return http.MethodGet, false
		}
		return method, method != http.MethodGet && method != http.MethodHead
	}
}

func resolveLocation(base *url.URL, location string) (*url.URL, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(loc), nil
}

func drainAndClose(body model.ReadCloserWithTrailer) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
