package cipher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultScriptTTL is how long a downloaded player script is reused.
	DefaultScriptTTL = 10 * time.Minute
	// DefaultScriptTimeout bounds one script download when the client has no timeout.
	DefaultScriptTimeout = 30 * time.Second

	scriptUserAgent = "Mozilla/5.0"
	maxScriptBytes  = 16 << 20
)

type scriptEntry struct {
	player *player
	expAt  time.Time
}

// scriptCache keeps downloaded player scripts by URL.
type scriptCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]scriptEntry
}

func newScriptCache(ttl time.Duration) *scriptCache {
	return &scriptCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]scriptEntry),
	}
}

func (c *scriptCache) get(url string) (*player, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expAt) {
		delete(c.entries, url)
		return nil, false
	}
	return e.player, true
}

func (c *scriptCache) put(url string, p *player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	c.entries[url] = scriptEntry{player: p, expAt: c.now().Add(c.ttl)}
}

func (c *scriptCache) purgeLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expAt) {
			delete(c.entries, k)
		}
	}
}

func (c *scriptCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// downloadScript fetches the player script body.
func downloadScript(ctx context.Context, client *http.Client, scriptURL string) ([]byte, error) {
	if scriptURL == "" {
		return nil, NewError(ErrCodePlayerJSNotFound, "player script url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return nil, NewError(ErrCodePlayerJSNotFound, "invalid player script url", err.Error())
	}
	req.Header.Set("User-Agent", scriptUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, NewError(ErrCodePlayerJSTimeout, "player script download timed out", err.Error())
		}
		return nil, NewError(ErrCodePlayerJSDownload, "failed to download player script", err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrCodePlayerJSDownload, fmt.Sprintf("player script returned HTTP %d", resp.StatusCode), scriptURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, NewError(ErrCodePlayerJSTimeout, "player script download timed out", err.Error())
		}
		return nil, NewError(ErrCodePlayerJSDownload, "failed to read player script", err.Error())
	}
	if len(body) == 0 {
		return nil, NewError(ErrCodePlayerJSDownload, "player script is empty", scriptURL)
	}
	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
