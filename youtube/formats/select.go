package formats

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/types"
)

var qualityLabelRe = regexp.MustCompile(`^([0-9]{3,4})p`)

// Selector picks one playable descriptor out of a resolved list.
// The zero value is the default choice.
type Selector struct {
	Itag      int
	MaxHeight int
	Best      bool
	Worst     bool
}

// ParseSelector reads "itag=NN", "best", "worst" or "height<=NNN".
// An empty string yields the default Selector.
func ParseSelector(s string) (Selector, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var sel Selector
	switch {
	case s == "":
	case s == "best":
		sel.Best = true
	case s == "worst":
		sel.Worst = true
	case strings.HasPrefix(s, "itag="):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "itag="))
		if err != nil || n <= 0 {
			return Selector{}, fmt.Errorf("%w: bad itag in selector %q", errs.ErrInvalidInput, s)
		}
		sel.Itag = n
	case strings.HasPrefix(s, "height<="):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "height<="))
		if err != nil || n <= 0 {
			return Selector{}, fmt.Errorf("%w: bad height in selector %q", errs.ErrInvalidInput, s)
		}
		sel.MaxHeight = n
	default:
		return Selector{}, fmt.Errorf("%w: unknown format selector %q", errs.ErrInvalidInput, s)
	}
	return sel, nil
}

// Select returns the descriptor sel picks among those carrying a url whose
// container matches ext (as named by ExtFromMime; empty matches all).
//
// best and worst rank every candidate by height, then bitrate. The default
// and height<= selectors rank the same way but prefer muxed audio+video
// formats when any qualify. Select returns nil when nothing qualifies.
func Select(ds []types.Descriptor, sel Selector, ext string) types.Descriptor {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")

	var pool, muxed []types.Descriptor
	for _, d := range ds {
		switch {
		case d.URL() == "":
		case ext != "" && ExtFromMime(d.MimeType()) != ext:
		case sel.Itag > 0 && Itag(d) != sel.Itag:
		case sel.MaxHeight > 0 && Height(d) > sel.MaxHeight:
		default:
			pool = append(pool, d)
			if Muxed(d) {
				muxed = append(muxed, d)
			}
		}
	}
	if len(pool) == 0 {
		return nil
	}

	switch {
	case sel.Itag > 0:
		return pool[0]
	case sel.Worst:
		return rankedFirst(pool, func(a, b types.Descriptor) bool { return outranks(b, a) })
	case sel.Best:
		return rankedFirst(pool, outranks)
	case len(muxed) > 0:
		return rankedFirst(muxed, outranks)
	}
	return rankedFirst(pool, outranks)
}

func rankedFirst(ds []types.Descriptor, before func(a, b types.Descriptor) bool) types.Descriptor {
	top := ds[0]
	for _, d := range ds[1:] {
		if before(d, top) {
			top = d
		}
	}
	return top
}

// outranks orders by height, then bitrate.
func outranks(a, b types.Descriptor) bool {
	if ha, hb := Height(a), Height(b); ha != hb {
		return ha > hb
	}
	return number(a, "bitrate") > number(b, "bitrate")
}

// Itag returns the descriptor's itag, 0 when absent.
func Itag(d types.Descriptor) int {
	return int(number(d, "itag"))
}

// Height returns the video height from the height field or, failing that,
// the qualityLabel ("720p60"). Audio formats report 0.
func Height(d types.Descriptor) int {
	if h := number(d, "height"); h > 0 {
		return int(h)
	}
	if m := qualityLabelRe.FindStringSubmatch(d.String("qualityLabel")); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// Muxed reports whether d carries both video and audio, as progressive
// formats do.
func Muxed(d types.Descriptor) bool {
	mime := strings.ToLower(d.MimeType())
	if !strings.HasPrefix(mime, "video/") {
		return false
	}
	if _, ok := d["audioQuality"]; ok {
		return true
	}
	_, codecs, _ := strings.Cut(mime, "codecs=")
	return strings.Contains(codecs, ",")
}

// number reads a numeric field the way player responses encode them:
// JSON numbers, or decimal strings for 64-bit values.
func number(d types.Descriptor, key string) int64 {
	switch v := d[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
