package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"github.com/ytget/ytstreams/cookies"
	"github.com/ytget/ytstreams/errs"
)

const (
	defaultSourceTimeout = 30 * time.Second
	maxSourceBody        = 4 << 20
)

// HTTPSource fetches records from a cookie export endpoint answering
// {"cookies":[...]} or a bare array.
type HTTPSource struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]cookies.Record, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cookie source URL: %v", errs.ErrConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cookie source: %v", errs.ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: cookie source status %d", errs.ErrUpstreamRequest, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read cookie source: %v", errs.ErrUpstreamRequest, err)
	}
	return cookies.DecodeRecords(body)
}

// FileSource re-reads a JSON export or a Netscape cookies.txt file on every
// refresh.
type FileSource struct {
	Fs   afero.Fs
	Path string
}

// Fetch implements Source.
func (s *FileSource) Fetch(context.Context) ([]cookies.Record, error) {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read cookie file: %v", errs.ErrInvalidInput, err)
	}
	if cookies.LooksLikeJSON(data) {
		return cookies.DecodeRecords(data)
	}
	return cookies.ParseNetscape(bytes.NewReader(data))
}

// StaticSource serves a fixed Cookie header style string.
type StaticSource struct {
	Text string
}

// Fetch implements Source.
func (s StaticSource) Fetch(context.Context) ([]cookies.Record, error) {
	return cookies.ParseCookieString(s.Text), nil
}
