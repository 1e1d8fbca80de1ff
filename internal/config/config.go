// Package config loads service settings: built-in defaults, then an
// optional YAML file, then STREAMS_* environment variables.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ytget/ytstreams/agent"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/session"
	"github.com/ytget/ytstreams/youtube/cipher"
)

// EnvConfigPath names the YAML file when no path is given explicitly.
const EnvConfigPath = "STREAMS_CONFIG"

// Config holds every service setting.
type Config struct {
	Addr string `yaml:"addr"`

	// Exactly one cookie source must be set.
	CookieURL  string `yaml:"cookie_url"`
	CookieFile string `yaml:"cookie_file"`
	Cookies    string `yaml:"cookies"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	SourceTimeout   time.Duration `yaml:"source_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ScriptCacheTTL  time.Duration `yaml:"script_cache_ttl"`

	Proxy                string  `yaml:"proxy"`
	Origin               string  `yaml:"origin"`
	PlatformOrigin       string  `yaml:"platform_origin"`
	UserAgent            string  `yaml:"user_agent"`
	FallbackPlayerScript string  `yaml:"fallback_player_script"`
	RateLimit            float64 `yaml:"rate_limit"`
	RateBurst            int     `yaml:"rate_burst"`

	HistoryDB string `yaml:"history_db"`

	Log logger.LogConfig `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:                 ":3000",
		RefreshInterval:      session.DefaultInterval,
		SourceTimeout:        30 * time.Second,
		RequestTimeout:       30 * time.Second,
		ScriptCacheTTL:       cipher.DefaultScriptTTL,
		Origin:               "https://m.youtube.com",
		PlatformOrigin:       "https://www.youtube.com",
		UserAgent:            agent.DefaultUserAgent,
		FallbackPlayerScript: "https://www.youtube.com/s/player/69b31e11/player-plasma-ias-tablet-en_US.vflset/base.js",
		RateBurst:            1,
		Log:                  *logger.DefaultLogConfig(),
	}
}

// Load layers the YAML file at path (or $STREAMS_CONFIG) and the environment
// over the defaults, then validates the result.
func Load(fs afero.Fs, path string) (*Config, error) {
	c := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := c.ReadFile(fs, path); err != nil {
			return nil, err
		}
	}
	c.ApplyEnvironment()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadFile merges the YAML document at path into c.
func (c *Config) ReadFile(fs afero.Fs, path string) error {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("%w: read config: %v", errs.ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse config %s: %v", errs.ErrConfiguration, path, err)
	}
	return nil
}

// ApplyEnvironment overrides c with STREAMS_* variables that are set.
func (c *Config) ApplyEnvironment() {
	c.Addr = env.Str("STREAMS_ADDR", c.Addr)
	c.CookieURL = env.Str("STREAMS_COOKIE_URL", c.CookieURL)
	c.CookieFile = env.Str("STREAMS_COOKIE_FILE", c.CookieFile)
	c.Cookies = env.Str("STREAMS_COOKIES", c.Cookies)
	c.RefreshInterval = env.Duration("STREAMS_REFRESH_INTERVAL", c.RefreshInterval)
	c.SourceTimeout = env.Duration("STREAMS_SOURCE_TIMEOUT", c.SourceTimeout)
	c.RequestTimeout = env.Duration("STREAMS_REQUEST_TIMEOUT", c.RequestTimeout)
	c.ScriptCacheTTL = env.Duration("STREAMS_SCRIPT_CACHE_TTL", c.ScriptCacheTTL)
	c.Proxy = env.Str("STREAMS_PROXY", c.Proxy)
	c.Origin = env.Str("STREAMS_ORIGIN", c.Origin)
	c.PlatformOrigin = env.Str("STREAMS_PLATFORM_ORIGIN", c.PlatformOrigin)
	c.UserAgent = env.Str("STREAMS_USER_AGENT", c.UserAgent)
	c.FallbackPlayerScript = env.Str("STREAMS_FALLBACK_PLAYER_SCRIPT", c.FallbackPlayerScript)
	c.RateLimit = env.Float("STREAMS_RATE_LIMIT", c.RateLimit)
	c.RateBurst = env.Int("STREAMS_RATE_BURST", c.RateBurst)
	c.HistoryDB = env.Str("STREAMS_HISTORY_DB", c.HistoryDB)
	c.Log.ApplyEnvironment()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var problems []string

	sources := 0
	for _, s := range []string{c.CookieURL, c.CookieFile, c.Cookies} {
		if strings.TrimSpace(s) != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		problems = append(problems, "one of cookie_url, cookie_file or cookies is required")
	case sources > 1:
		problems = append(problems, "cookie_url, cookie_file and cookies are mutually exclusive")
	}
	if c.CookieURL != "" {
		if u, err := url.Parse(c.CookieURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid cookie_url %q", c.CookieURL))
		}
	}
	if c.Addr == "" {
		problems = append(problems, "addr is required")
	}
	if c.RefreshInterval <= 0 {
		problems = append(problems, "refresh_interval must be positive")
	}
	if c.SourceTimeout <= 0 || c.RequestTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.ScriptCacheTTL <= 0 {
		problems = append(problems, "script_cache_ttl must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		problems = append(problems, "rate_limit and rate_burst must not be negative")
	}
	if c.Proxy != "" {
		if _, err := agent.ParseProxyURI(c.Proxy); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if err := c.Log.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errs.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// ProxyConfig returns the outbound proxy, nil when unset.
func (c *Config) ProxyConfig() *agent.ProxyConfig {
	if c.Proxy == "" {
		return nil
	}
	return &agent.ProxyConfig{URI: c.Proxy}
}

// CookieSource builds the configured cookie source.
func (c *Config) CookieSource(fs afero.Fs) (session.Source, error) {
	switch {
	case c.CookieURL != "":
		return &session.HTTPSource{
			URL:     c.CookieURL,
			Client:  &http.Client{},
			Timeout: c.SourceTimeout,
		}, nil
	case c.CookieFile != "":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return &session.FileSource{Fs: fs, Path: c.CookieFile}, nil
	case c.Cookies != "":
		return &session.StaticSource{Text: c.Cookies}, nil
	}
	return nil, fmt.Errorf("%w: no cookie source configured", errs.ErrConfiguration)
}
