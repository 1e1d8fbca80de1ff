// Package watch fetches mobile watch pages with the session cookies and
// extracts the embedded player response.
package watch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/ytget/ytstreams/agent"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/session"
)

const (
	// DefaultOrigin is the mobile web origin.
	DefaultOrigin         = "https://m.youtube.com"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	maxPageSize           = 16 << 20
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// StateReader exposes the current session snapshot.
type StateReader interface {
	Snapshot() session.Snapshot
}

// Config holds fetcher parameters. Zero values use defaults.
type Config struct {
	Origin         string
	UserAgent      string
	AcceptLanguage string
	Proxy          *agent.ProxyConfig
	LocalAddr      string
	Timeout        time.Duration
	// RateLimit is in requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *logger.Logger
}

// Fetcher issues impersonated watch-page requests.
type Fetcher struct {
	state   StateReader
	cfg     Config
	origin  string
	limiter *rate.Limiter
	log     *logger.ComponentLogger

	mu    sync.Mutex
	gen   uint64
	agent *agent.Agent
}

// NewFetcher validates cfg and returns a fetcher reading cookies from state.
func NewFetcher(state StateReader, cfg Config) (*Fetcher, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil session state", errs.ErrConfiguration)
	}
	origin := strings.TrimRight(cfg.Origin, "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid origin %q", errs.ErrConfiguration, cfg.Origin)
	}
	if cfg.Proxy != nil && cfg.Proxy.URI != "" {
		if _, err := agent.ParseProxyURI(cfg.Proxy.URI); err != nil {
			return nil, err
		}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = agent.DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}

	f := &Fetcher{
		state:  state,
		cfg:    cfg,
		origin: origin,
		log:    logger.For(cfg.Logger, logger.ComponentFetcher),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f, nil
}

// Origin returns the watch-page origin.
func (f *Fetcher) Origin() string {
	return f.origin
}

// agentFor returns the agent bound to snap's jar, building a new one when
// the session generation changed.
func (f *Fetcher) agentFor(snap session.Snapshot) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.agent != nil && f.gen == snap.Generation {
		return f.agent, nil
	}
	a, err := agent.NewWith(snap.Jar, agent.Config{
		Proxy:     f.cfg.Proxy,
		Timeout:   f.cfg.Timeout,
		UserAgent: f.cfg.UserAgent,
		LocalAddr: f.cfg.LocalAddr,
	})
	if err != nil {
		return nil, err
	}
	if f.agent != nil {
		f.agent.CloseIdleConnections()
	}
	f.agent, f.gen = a, snap.Generation
	f.log.Debug("dispatch agent rebuilt", map[string]interface{}{
		"generation": snap.Generation,
		"proxy":      a.Proxy(),
	})
	return a, nil
}

// FetchPlayerResponse downloads the watch page for videoID and extracts its
// player response. It fails with errs.ErrNotReady, without any I/O, until
// the session has cookies.
func (f *Fetcher) FetchPlayerResponse(ctx context.Context, videoID string) (*PlayerResponse, error) {
	snap := f.state.Snapshot()
	if !snap.Ready() {
		return nil, errs.ErrNotReady
	}
	if !videoIDRe.MatchString(videoID) {
		return nil, fmt.Errorf("%w: video id %q", errs.ErrInvalidInput, videoID)
	}

	a, err := f.agentFor(snap)
	if err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %v", errs.ErrUpstreamRequest, err)
		}
	}

	pageURL := f.origin + "/watch?v=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Referer", f.origin+"/")
	req.Header.Set("Cookie", snap.Header)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: watch page status %d", errs.ErrUpstreamRequest, resp.StatusCode)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read watch page: %v", errs.ErrUpstreamRequest, err)
	}

	f.log.Debug("watch page fetched", map[string]interface{}{
		"video_id": videoID,
		"bytes":    len(body),
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	})

	pr, err := ExtractPlayerResponse(body)
	if err != nil {
		f.log.Warn("player response extraction failed", map[string]interface{}{
			"video_id": videoID,
			"error":    err.Error(),
		})
		return nil, err
	}
	return pr, nil
}

// readBody decodes the response according to Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
		if err != nil {
			return nil, err
		}
		return inflate(raw)
	}
	return io.ReadAll(io.LimitReader(reader, maxPageSize))
}

// inflate accepts zlib-wrapped and raw deflate streams.
func inflate(raw []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		defer func() { _ = zr.Close() }()
		return io.ReadAll(io.LimitReader(zr, maxPageSize))
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer func() { _ = fr.Close() }()
	return io.ReadAll(io.LimitReader(fr, maxPageSize))
}
