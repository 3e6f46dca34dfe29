// Package cookiejar implements the agent's cookie store: per-domain
// buckets keyed by (name, path), populated from Set-Cookie response
// headers and emitted as a Cookie request header, following the
// matching and priority rules in RFC 6265 §5.
package cookiejar

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

type cookie struct {
	name, value string
	domain, path string
	secure      bool
	expires     time.Time
	created     int64
}

// Jar is safe for concurrent use; the redirect loop calls Store and
// Lookup from a single exchange at a time, but an Agent shares one Jar
// across concurrently in-flight sends.
type Jar struct {
	mu       sync.Mutex
	byDomain map[string]map[string]*cookie
	seq      int64
}

// New builds an empty Jar.
func New() *Jar {
	return &Jar{byDomain: map[string]map[string]*cookie{}}
}

// Store parses every Set-Cookie header in header and files each valid
// cookie under the domain it validates against, relative to origin.
func (j *Jar) Store(origin *url.URL, header http.Header) {
	host := strings.ToLower(origin.Hostname())
	if host == "" {
		return
	}
	for _, line := range header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		j.store(host, origin, c)
	}
}

func (j *Jar) store(host string, origin *url.URL, c *http.Cookie) {
	domain, ok := validatedDomain(host, c.Domain)
	if !ok {
		return
	}
	path := c.Path
	if path == "" {
		path = defaultCookiePath(origin.Path)
	}
	expires := resolveExpiry(c)
	key := c.Name + "\x00" + path

	j.mu.Lock()
	defer j.mu.Unlock()

	if !expires.After(time.Now()) {
		if bucket, ok := j.byDomain[domain]; ok {
			delete(bucket, key)
		}
		return
	}

	bucket, ok := j.byDomain[domain]
	if !ok {
		bucket = map[string]*cookie{}
		j.byDomain[domain] = bucket
	}
	j.seq++
	bucket[key] = &cookie{
		name:    c.Name,
		value:   c.Value,
		domain:  domain,
		path:    path,
		secure:  c.Secure,
		expires: expires,
		created: j.seq,
	}
}

// Lookup builds the Cookie header value to send with a request to
// target: every stored cookie whose domain, path, and Secure
// constraint match, ordered by path length (longest first) then
// creation order, joined with "; ".
func (j *Jar) Lookup(target *url.URL) string {
	host := strings.ToLower(target.Hostname())
	secure := strings.EqualFold(target.Scheme, "https")
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	now := time.Now()

	j.mu.Lock()
	var matches []*cookie
	for domain, bucket := range j.byDomain {
		if !domainMatch(host, domain) {
			continue
		}
		for _, c := range bucket {
			if !c.expires.After(now) {
				continue
			}
			if c.secure && !secure {
				continue
			}
			if !pathMatch(c.path, path) {
				continue
			}
			matches = append(matches, c)
		}
	}
	j.mu.Unlock()

	sort.SliceStable(matches, func(i, k int) bool {
		if len(matches[i].path) != len(matches[k].path) {
			return len(matches[i].path) > len(matches[k].path)
		}
		return matches[i].created < matches[k].created
	})

	parts := make([]string, len(matches))
	for i, c := range matches {
		parts[i] = c.name + "=" + c.value
	}
	return strings.Join(parts, "; ")
}
