// Package formats collects, inspects and selects platform format descriptors.
package formats

import (
	"net/url"
	"strings"

	"github.com/ytget/ytstreams/types"
)

func getSubtype(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// Collect concatenates progressive then adaptive descriptors in source
// order. The result is never nil.
func Collect(progressive, adaptive []types.Descriptor) []types.Descriptor {
	all := make([]types.Descriptor, 0, len(progressive)+len(adaptive))
	all = append(all, progressive...)
	all = append(all, adaptive...)
	return all
}

// ScriptRef returns the absolute player script URL: assetsJS resolved
// against origin when present, fallback otherwise.
func ScriptRef(assetsJS, origin, fallback string) string {
	assetsJS = strings.TrimSpace(assetsJS)
	if assetsJS == "" {
		return fallback
	}
	base, err := url.Parse(origin)
	if err != nil {
		return strings.TrimRight(origin, "/") + assetsJS
	}
	ref, err := url.Parse(assetsJS)
	if err != nil {
		return fallback
	}
	return base.ResolveReference(ref).String()
}

// RawURL returns the direct url of d, or the url embedded in its signature
// cipher without deciphering. The result may not be playable.
func RawURL(d types.Descriptor) string {
	if u := d.URL(); u != "" {
		return u
	}
	sc := d.Cipher()
	if sc == "" {
		return ""
	}
	if q, err := url.ParseQuery(sc); err == nil {
		if u := q.Get("url"); u != "" {
			return u
		}
	}
	return sc
}
