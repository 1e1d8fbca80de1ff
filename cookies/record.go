package cookies

import (
	"net/http"
	"strings"
	"time"
)

// SameSite is the raw same-site attribute of a record as exported by browsers.
type SameSite string

const (
	SameSiteStrict SameSite = "strict"
	SameSiteLax    SameSite = "lax"
	SameSiteNone   SameSite = "none"
)

// Normalize coerces s to strict, lax or none. Extension values such as
// no_restriction and unspecified, and anything unknown, become none.
func (s SameSite) Normalize() SameSite {
	switch SameSite(strings.ToLower(strings.TrimSpace(string(s)))) {
	case SameSiteStrict:
		return SameSiteStrict
	case SameSiteLax:
		return SameSiteLax
	default:
		return SameSiteNone
	}
}

func (s SameSite) httpMode() http.SameSite {
	switch s.Normalize() {
	case SameSiteStrict:
		return http.SameSiteStrictMode
	case SameSiteLax:
		return http.SameSiteLaxMode
	default:
		return http.SameSiteNoneMode
	}
}

func sameSiteFromHTTP(m http.SameSite) SameSite {
	switch m {
	case http.SameSiteStrictMode:
		return SameSiteStrict
	case http.SameSiteLaxMode:
		return SameSiteLax
	default:
		return SameSiteNone
	}
}

// Record is a single cookie in browser-extension export form. Records are
// unique by (Name, Domain, Path).
type Record struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Secure   bool     `json:"secure,omitempty"`
	HTTPOnly bool     `json:"httpOnly,omitempty"`
	SameSite SameSite `json:"sameSite,omitempty"`
	// ExpirationDate is in epoch seconds. Nil means no expiry.
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	HostOnly       bool     `json:"hostOnly,omitempty"`
	Session        bool     `json:"session,omitempty"`
}

// Expires returns the record expiry, or the zero time when unbounded.
func (r Record) Expires() time.Time {
	if r.ExpirationDate == nil {
		return time.Time{}
	}
	sec := *r.ExpirationDate
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*float64(time.Second)))
}

// ExpiresAt returns a pointer to t in epoch seconds, for building records.
func ExpiresAt(t time.Time) *float64 {
	v := float64(t.UnixNano()) / float64(time.Second)
	return &v
}

const consentName = "SOCS"

// consentCookie is appended to every jar that lacks a SOCS entry.
func consentCookie() Record {
	return Record{
		Name:     consentName,
		Value:    "CAI",
		Domain:   ".youtube.com",
		Path:     "/",
		Secure:   true,
		SameSite: SameSiteLax,
	}
}
