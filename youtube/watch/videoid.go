package watch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ytget/ytstreams/errs"
)

// VideoID accepts a bare id or a watch, youtu.be, shorts or embed URL and
// returns the video id.
func VideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDRe.MatchString(input) {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: not a video id or url: %q", errs.ErrInvalidInput, input)
	}

	var id string
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case strings.HasPrefix(u.Path, "/watch"):
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	}
	if !videoIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", errs.ErrInvalidInput, input)
	}
	return id, nil
}
