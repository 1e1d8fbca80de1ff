package errs

import (
	"errors"
)

var (
	// ErrConfiguration indicates invalid setup such as an unparsable proxy URI.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput indicates malformed caller input (cookie records, video id).
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidUpstreamResponse indicates the cookie source answered with an unexpected shape.
	ErrInvalidUpstreamResponse = errors.New("invalid upstream response")
	// ErrNotReady indicates that no usable cookie set has been loaded yet.
	ErrNotReady = errors.New("cookies not loaded yet, please try again in a moment")
	// ErrExtraction indicates the watch page did not carry a parsable player response.
	ErrExtraction = errors.New("player response extraction failed")
	// ErrNoStreamingData indicates the player response has no streaming data section.
	ErrNoStreamingData = errors.New("no streamingData found in player response")
	// ErrUpstreamRequest indicates a network or HTTP failure while talking to a remote service.
	ErrUpstreamRequest = errors.New("upstream request failed")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
)
