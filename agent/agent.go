// Package agent builds HTTP dispatchers bound to a cookie jar, optionally
// routed through a forward proxy.
package agent

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytstreams/cookies"
	"github.com/ytget/ytstreams/errs"
)

const (
	defaultTimeout = 30 * time.Second

	// DefaultUserAgent impersonates Chrome on an Android phone.
	DefaultUserAgent = "Mozilla/5.0 (Linux; Android 10; Mobile) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36"
)

// baseTransport is cloned for every agent so proxies never leak between them.
var baseTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	ForceAttemptHTTP2:     true,
	// bodies are decoded by the caller, which asks for br as well
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
}

// ProxyConfig describes a forward proxy. URI accepts http, https and socks5
// schemes, with optional user:password.
type ProxyConfig struct {
	URI string
}

// Config holds optional agent parameters. Zero values use defaults.
type Config struct {
	Proxy     *ProxyConfig
	Timeout   time.Duration
	UserAgent string
	// LocalAddr pins outbound connections to a local IP.
	LocalAddr string
}

// Agent is an http.Client whose transport attaches the jar's cookies to
// every request and stores cookies set by responses back into the jar.
type Agent struct {
	HTTPClient *http.Client
	Jar        *cookies.Jar
	UserAgent  string
	proxy      *url.URL
}

// New builds an agent for jar, routed through proxy when it is non-nil.
func New(jar *cookies.Jar, proxy *ProxyConfig) (*Agent, error) {
	return NewWith(jar, Config{Proxy: proxy})
}

// NewWith builds an agent with cfg. It performs no network I/O.
func NewWith(jar *cookies.Jar, cfg Config) (*Agent, error) {
	if jar == nil {
		return nil, fmt.Errorf("%w: nil cookie jar", errs.ErrInvalidInput)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.LocalAddr != "" {
		ip := net.ParseIP(cfg.LocalAddr)
		if ip == nil {
			return nil, fmt.Errorf("%w: invalid local address %q", errs.ErrConfiguration, cfg.LocalAddr)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	tr := baseTransport.Clone()
	tr.DialContext = dialer.DialContext

	var proxyURL *url.URL
	if cfg.Proxy != nil && cfg.Proxy.URI != "" {
		u, err := ParseProxyURI(cfg.Proxy.URI)
		if err != nil {
			return nil, err
		}
		proxyURL = u
		tr.Proxy = http.ProxyURL(u)
	}

	return &Agent{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &cookieTransport{jar: jar, base: tr},
		},
		Jar:       jar,
		UserAgent: ua,
		proxy:     proxyURL,
	}, nil
}

// NewHTTPClient returns a client without cookies that shares the agent
// transport settings and proxy. It serves downloads such as player scripts
// that need no session.
func NewHTTPClient(proxy *ProxyConfig, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tr := baseTransport.Clone()
	if proxy != nil && proxy.URI != "" {
		u, err := ParseProxyURI(proxy.URI)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: tr}, nil
}

// ParseProxyURI validates a proxy URI. Failures wrap errs.ErrConfiguration and
// never echo credentials.
func ParseProxyURI(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unparsable proxy URI", errs.ErrConfiguration)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: unsupported proxy scheme %q", errs.ErrConfiguration, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: proxy URI has no host", errs.ErrConfiguration)
	}
	return u, nil
}

// Proxy returns the configured proxy with credentials redacted, or "".
func (a *Agent) Proxy() string {
	if a.proxy == nil {
		return ""
	}
	return a.proxy.Redacted()
}

// Do sends req, setting the agent's User-Agent when the request has none.
// Transport failures, timeouts included, wrap errs.ErrUpstreamRequest.
func (a *Agent) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrUpstreamRequest, req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

// Get performs a GET request with ctx.
func (a *Agent) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return a.Do(req)
}

// CloseIdleConnections releases pooled connections.
func (a *Agent) CloseIdleConnections() {
	a.HTTPClient.CloseIdleConnections()
}

// cookieTransport layers cookie handling over a proxy-aware transport.
type cookieTransport struct {
	jar  *cookies.Jar
	base http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	present := make(map[string]bool)
	for _, c := range out.Cookies() {
		present[c.Name] = true
	}
	for _, c := range t.jar.Cookies(out.URL) {
		if present[c.Name] {
			continue
		}
		present[c.Name] = true
		out.AddCookie(c)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if set := resp.Cookies(); len(set) > 0 {
		t.jar.SetCookies(out.URL, set)
	}
	return resp, nil
}

// drain discards the rest of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}

// Discard drains and closes resp.Body.
func Discard(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		drain(resp.Body)
	}
}
