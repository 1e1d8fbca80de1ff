package watch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/types"
)

// PlayerResponse is the ytInitialPlayerResponse document embedded in a
// watch page. Only the fields the pipeline reads are typed; Raw keeps the
// whole document.
type PlayerResponse struct {
	StreamingData     *StreamingData    `json:"streamingData,omitempty"`
	VideoDetails      VideoDetails      `json:"videoDetails"`
	PlayabilityStatus PlayabilityStatus `json:"playabilityStatus"`
	Assets            *Assets           `json:"assets,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// StreamingData holds the progressive and adaptive format lists.
type StreamingData struct {
	Formats          []types.Descriptor `json:"formats"`
	AdaptiveFormats  []types.Descriptor `json:"adaptiveFormats"`
	ExpiresInSeconds string             `json:"expiresInSeconds,omitempty"`
}

// VideoDetails carries video metadata.
type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds string `json:"lengthSeconds"`
}

// PlayabilityStatus reports whether the video can be played.
type PlayabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Assets points at the player script.
type Assets struct {
	JS string `json:"js"`
}

// ScriptPath returns assets.js or "".
func (p *PlayerResponse) ScriptPath() string {
	if p == nil || p.Assets == nil {
		return ""
	}
	return p.Assets.JS
}

var playerResponseRe = regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*\{`)

// ExtractPlayerResponse finds the first ytInitialPlayerResponse assignment
// in html and decodes exactly one JSON object from it. The object must be
// followed by ';'. Every failure wraps errs.ErrExtraction.
func ExtractPlayerResponse(html []byte) (*PlayerResponse, error) {
	loc := playerResponseRe.FindIndex(html)
	if loc == nil {
		return nil, fmt.Errorf("%w: ytInitialPlayerResponse not found", errs.ErrExtraction)
	}
	start := loc[1] - 1

	dec := json.NewDecoder(bytes.NewReader(html[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", errs.ErrExtraction, err)
	}

	rest := bytes.TrimLeft(html[start+int(dec.InputOffset()):], " \t\r\n")
	if len(rest) == 0 || rest[0] != ';' {
		return nil, fmt.Errorf("%w: ytInitialPlayerResponse is not terminated by ';'", errs.ErrExtraction)
	}

	var pr PlayerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("%w: unexpected document shape: %v", errs.ErrExtraction, err)
	}
	pr.Raw = raw
	return &pr, nil
}
