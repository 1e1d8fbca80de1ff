// Package sanitize builds file names from stream titles.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxFilenameLength is the maximum length in bytes of the name without extension.
	MaxFilenameLength = 120
	// DefaultExt is used when ext is empty.
	DefaultExt = "mp4"
	// DefaultName replaces an empty title.
	DefaultName = "video"
)

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Filename returns "<title>.<ext>" safe on every common filesystem.
func Filename(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, title)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = spaces.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")
	name = truncate(name, MaxFilenameLength)
	if name == "" {
		name = DefaultName
	}

	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return name + "." + ext
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimRight(s, " .")
}
