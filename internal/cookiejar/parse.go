package cookiejar

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// defaultSessionLifetime offsets a cookie with neither Max-Age nor
// Expires far enough into the future that it effectively lives for the
// lifetime of the Jar, matching the historical "9999 days" convention
// rather than dropping it at the end of the response.
const defaultSessionLifetime = 9999 * 24 * time.Hour

// validatedDomain resolves the domain a cookie should be stored
// against, per the store invariants: no Domain attribute means the
// exact origin host; a Domain attribute must be a domain-suffix of the
// origin and must not itself be a public suffix.
func validatedDomain(host, domainAttr string) (string, bool) {
	if domainAttr == "" {
		return host, true
	}
	domain := strings.ToLower(strings.TrimPrefix(domainAttr, "."))
	if !domainMatch(host, domain) {
		return "", false
	}
	if isPublicSuffix(domain) {
		return "", false
	}
	return domain, true
}

// domainMatch implements RFC 6265 §5.1.3: exact match, or host is a
// subdomain of domain with a dot boundary.
func domainMatch(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// defaultCookiePath implements the RFC 6265 §5.1.4 default-path
// algorithm for a cookie with no explicit Path attribute.
func defaultCookiePath(uriPath string) string {
	if uriPath == "" || uriPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(uriPath, "/")
	if i <= 0 {
		return "/"
	}
	return uriPath[:i]
}

// pathMatch implements the RFC 6265 §5.1.4 path-match algorithm.
func pathMatch(cookiePath, requestPath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// resolveExpiry applies the documented Max-Age-overrides-Expires rule,
// falling back to a long-lived session cookie when neither is set.
func resolveExpiry(c *http.Cookie) time.Time {
	if c.MaxAge != 0 {
		if c.MaxAge < 0 {
			return time.Unix(0, 0)
		}
		return time.Now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	if !c.Expires.IsZero() {
		return c.Expires
	}
	return time.Now().Add(defaultSessionLifetime)
}
