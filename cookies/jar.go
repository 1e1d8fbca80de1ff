package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/ytget/ytstreams/errs"
)

// DefaultOrigin is the origin jars are scoped to.
const DefaultOrigin = "https://www.youtube.com"

// Jar is an ordered, origin-scoped cookie set. It implements http.CookieJar
// on top of an RFC 6265 jar and additionally remembers insertion order so
// Header is stable.
type Jar struct {
	origin *url.URL
	rfc    *cookiejar.Jar
	now    func() time.Time

	mu      sync.RWMutex
	entries []*http.Cookie
}

var _ http.CookieJar = (*Jar)(nil)

func newJar(origin string) (*Jar, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: origin %q", errs.ErrConfiguration, origin)
	}
	rfc, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	return &Jar{origin: u, rfc: rfc, now: time.Now}, nil
}

// BuildJar normalizes records into a jar scoped to DefaultOrigin.
func BuildJar(records []Record) (*Jar, error) {
	return BuildJarFor(DefaultOrigin, records)
}

// BuildJarFor is BuildJar with an explicit origin.
//
// A nil slice is rejected with errs.ErrInvalidInput; an empty one yields a jar
// holding only the consent cookie. Records without a name are skipped.
func BuildJarFor(origin string, records []Record) (*Jar, error) {
	if records == nil {
		return nil, fmt.Errorf("%w: cookies must be a list", errs.ErrInvalidInput)
	}
	jar, err := newJar(origin)
	if err != nil {
		return nil, err
	}

	all := make([]Record, 0, len(records)+1)
	all = append(all, singleConsent(records)...)
	if !hasName(records, consentName) {
		all = append(all, consentCookie())
	}

	for _, r := range all {
		if r.Name == "" {
			continue
		}
		jar.add(jar.normalize(r))
	}
	return jar, nil
}

// BuildJarFromString parses a Cookie header style string and builds a jar.
func BuildJarFromString(text string) (*Jar, error) {
	return BuildJar(ParseCookieString(text))
}

// singleConsent keeps one consent record whatever its domain: the last one,
// at the position of the first.
func singleConsent(records []Record) []Record {
	first, last := -1, -1
	for i, r := range records {
		if r.Name == consentName {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first == last {
		return records
	}
	out := make([]Record, 0, len(records))
	for i, r := range records {
		switch {
		case i == first:
			out = append(out, records[last])
		case r.Name == consentName:
		default:
			out = append(out, r)
		}
	}
	return out
}

func hasName(records []Record, name string) bool {
	for _, r := range records {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (j *Jar) normalize(r Record) *http.Cookie {
	domain := canonicalDomain(r.Domain)
	if domain == "" {
		domain = j.registrableDomain()
	}
	path := r.Path
	if path == "" || path[0] != '/' {
		path = "/"
	}
	c := &http.Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Path:     path,
		Secure:   r.Secure,
		HttpOnly: r.HTTPOnly,
		SameSite: r.SameSite.httpMode(),
		Expires:  r.Expires(),
	}
	// host-only cookies carry no Domain attribute; the host is kept in Raw
	if r.HostOnly {
		c.Raw = domain
	} else {
		c.Domain = domain
	}
	return c
}

func (j *Jar) registrableDomain() string {
	host := j.origin.Hostname()
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

// canonicalDomain lowercases, strips the leading dot and converts IDNs to ASCII.
func canonicalDomain(d string) string {
	d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
	if d == "" {
		return ""
	}
	if ascii, err := idna.ToASCII(d); err == nil {
		return ascii
	}
	return d
}

func cookieHost(c *http.Cookie) string {
	if c.Domain != "" {
		return c.Domain
	}
	return c.Raw
}

// add inserts c, replacing an earlier entry with the same name, host and path
// in place, and mirrors it into the RFC 6265 jar.
func (j *Jar) add(c *http.Cookie) {
	j.mu.Lock()
	replaced := false
	for i, e := range j.entries {
		if e.Name == c.Name && cookieHost(e) == cookieHost(c) && e.Path == c.Path {
			j.entries[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		j.entries = append(j.entries, c)
	}
	j.mu.Unlock()

	u := &url.URL{Scheme: "https", Host: cookieHost(c), Path: c.Path}
	out := *c
	out.Raw = ""
	j.rfc.SetCookies(u, []*http.Cookie{&out})
}

// Header renders the jar as a Cookie header value in insertion order,
// skipping expired entries.
func (j *Jar) Header() string {
	now := j.now()
	j.mu.RLock()
	defer j.mu.RUnlock()

	parts := make([]string, 0, len(j.entries))
	for _, c := range j.entries {
		if expired(c, now) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func expired(c *http.Cookie, now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Records converts the jar back to records, in insertion order.
func (j *Jar) Records() []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Record, 0, len(j.entries))
	for _, c := range j.entries {
		r := Record{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   cookieHost(c),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			SameSite: sameSiteFromHTTP(c.SameSite),
			HostOnly: c.Domain == "",
		}
		if c.Domain != "" {
			r.Domain = "." + c.Domain
		}
		if !c.Expires.IsZero() {
			r.ExpirationDate = ExpiresAt(c.Expires)
		} else {
			r.Session = true
		}
		out = append(out, r)
	}
	return out
}

// Len returns the number of entries, expired ones included.
func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Count returns how many entries are named name.
func (j *Jar) Count(name string) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := 0
	for _, c := range j.entries {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Origin returns the origin the jar is scoped to.
func (j *Jar) Origin() *url.URL {
	u := *j.origin
	return &u
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.rfc.Cookies(u)
}

// SetCookies implements http.CookieJar. Cookies stored this way also show up
// in Header and Records.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		nc := *c
		nc.Domain = canonicalDomain(c.Domain)
		nc.Raw = ""
		if nc.Domain == "" {
			nc.Raw = canonicalDomain(u.Hostname())
		}
		if nc.Path == "" || nc.Path[0] != '/' {
			nc.Path = "/"
		}
		if nc.MaxAge < 0 {
			nc.Expires = time.Unix(1, 0)
		} else if nc.MaxAge > 0 {
			nc.Expires = j.now().Add(time.Duration(nc.MaxAge) * time.Second)
		}
		nc.MaxAge = 0
		j.add(&nc)
	}
}
