package types

import "maps"

// Descriptor is a platform format descriptor as found in the player response.
// It is passed through untouched except for the fields the decipher step needs.
type Descriptor map[string]any

// String returns the string value stored under key, or "" when absent.
func (d Descriptor) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// MimeType returns the descriptor's mimeType field.
func (d Descriptor) MimeType() string { return d.String("mimeType") }

// URL returns the direct url field, empty when the format is cipher-protected.
func (d Descriptor) URL() string { return d.String("url") }

// Cipher returns the encoded signature cipher, checking both field names the
// platform has used over time.
func (d Descriptor) Cipher() string {
	if sc := d.String("signatureCipher"); sc != "" {
		return sc
	}
	return d.String("cipher")
}

// Clone returns a shallow copy so callers can rewrite top-level fields.
func (d Descriptor) Clone() Descriptor {
	return maps.Clone(d)
}

// StreamList is the resolved answer for one video.
type StreamList struct {
	VideoID string       `json:"videoId"`
	Title   string       `json:"title"`
	Formats []Descriptor `json:"formats"`
}
