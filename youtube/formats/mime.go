package formats

import "strings"

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	ExtM4A  = "m4a"
	ExtWebM = "webm"

	MimeVideoMP4  = "video/mp4"
	MimeAudioMP4  = "audio/mp4"
	MimeVideoWebM = "video/webm"
	MimeAudioWebM = "audio/webm"
)

// ExtFromMime returns the file extension, without dot, for a mimeType such
// as `audio/mp4; codecs="mp4a.40.2"`. Unknown types fall back to the
// subtype, then mp4.
func ExtFromMime(mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return DefaultExt
	}
	base := mime
	if i := strings.Index(mime, ";"); i >= 0 {
		base = strings.TrimSpace(mime[:i])
	}
	switch strings.ToLower(base) {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	}
	if sub := getSubtype(base); sub != "" {
		return sub
	}
	return DefaultExt
}
