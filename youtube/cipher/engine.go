package cipher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/types"
)

// Options tunes one DecipherFormats call.
type Options struct {
	// SkipN leaves the throttling parameter untouched.
	SkipN bool
}

// Decipherer turns platform format descriptors into descriptors carrying a
// playable url.
type Decipherer interface {
	DecipherFormats(ctx context.Context, formats []types.Descriptor, scriptURL string, opts Options) ([]types.Descriptor, error)
}

// Metrics is a snapshot of engine counters.
type Metrics struct {
	Formats        int64 `json:"formats"`
	Deciphered     int64 `json:"deciphered"`
	Unresolved     int64 `json:"unresolved"`
	NTransformed   int64 `json:"nTransformed"`
	ScriptFetches  int64 `json:"scriptFetches"`
	ScriptCacheHit int64 `json:"scriptCacheHits"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = logger.For(l, logger.ComponentCipher) }
}

// WithTTL overrides how long player scripts are cached.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.cache.ttl = ttl
		}
	}
}

// Engine is the default Decipherer. It is safe for concurrent use.
type Engine struct {
	client *http.Client
	cache  *scriptCache
	group  singleflight.Group
	log    *logger.ComponentLogger

	formats, deciphered, unresolved, nTransformed atomic.Int64
	fetches, hits                                  atomic.Int64
}

var _ Decipherer = (*Engine)(nil)

// New returns an Engine downloading scripts with client (http.DefaultClient when nil).
func New(client *http.Client, opts ...Option) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Engine{
		client: client,
		cache:  newScriptCache(DefaultScriptTTL),
		log:    logger.For(nil, logger.ComponentCipher),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Metrics returns the current counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		Formats:        e.formats.Load(),
		Deciphered:     e.deciphered.Load(),
		Unresolved:     e.unresolved.Load(),
		NTransformed:   e.nTransformed.Load(),
		ScriptFetches:  e.fetches.Load(),
		ScriptCacheHit: e.hits.Load(),
	}
}

// DecipherFormats returns one copy of every input descriptor, in order, with
// url resolved and the cipher fields removed. A descriptor whose signature
// cannot be resolved comes back without url. A script load failure is
// returned only when some descriptor carries a signature cipher.
func (e *Engine) DecipherFormats(ctx context.Context, formats []types.Descriptor, scriptURL string, opts Options) ([]types.Descriptor, error) {
	out := make([]types.Descriptor, 0, len(formats))
	if len(formats) == 0 {
		return out, nil
	}

	var p *player
	required, wanted := scriptNeeds(formats, opts)
	if required || wanted {
		var err error
		if p, err = e.load(ctx, scriptURL); err != nil {
			if required {
				e.log.Error("Player script unavailable", map[string]any{"script": scriptURL, "error": err.Error()})
				return nil, err
			}
			e.log.Warn("Player script unavailable, n left as is", map[string]any{"script": scriptURL, "error": err.Error()})
		}
	}

	for _, f := range formats {
		e.formats.Add(1)
		d := f.Clone()
		delete(d, "signatureCipher")
		delete(d, "cipher")

		raw, err := e.resolve(f, p)
		if err != nil {
			e.unresolved.Add(1)
			delete(d, "url")
			e.log.Warn("Signature not resolved", map[string]any{"itag": f["itag"], "error": err.Error()})
			out = append(out, d)
			continue
		}
		if !opts.SkipN && p != nil {
			raw = e.transformN(raw, p)
		}
		d["url"] = raw
		out = append(out, d)
	}

	e.log.Debug("Formats deciphered", map[string]any{"count": len(out), "script": scriptURL})
	return out, nil
}

// scriptNeeds reports whether some descriptor cannot be resolved without the
// script (required) and whether some direct url carries an n parameter (wanted).
func scriptNeeds(formats []types.Descriptor, opts Options) (required, wanted bool) {
	for _, f := range formats {
		direct := f.URL()
		if direct == "" && f.Cipher() != "" {
			required = true
		}
		if !opts.SkipN && hasN(direct) {
			wanted = true
		}
	}
	return required, wanted
}

func hasN(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Query().Get("n") != ""
}

// resolve returns the playable url of f before any n transform.
func (e *Engine) resolve(f types.Descriptor, p *player) (string, error) {
	if direct := f.URL(); direct != "" {
		return direct, nil
	}
	sc := f.Cipher()
	if sc == "" {
		return "", NewError(ErrCodeSignatureInvalid, "format has neither url nor cipher")
	}
	parsed, err := url.ParseQuery(sc)
	if err != nil {
		return "", NewError(ErrCodeSignatureInvalid, "malformed signature cipher", err.Error())
	}
	base, sig := parsed.Get("url"), parsed.Get("s")
	if base == "" || sig == "" {
		return "", NewError(ErrCodeSignatureInvalid, "signature cipher lacks url or s")
	}
	sp := parsed.Get("sp")
	if sp == "" {
		sp = "signature"
	}

	decoded, err := p.signature(sig)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", NewError(ErrCodeSignatureInvalid, "malformed stream url", err.Error())
	}
	q := u.Query()
	q.Set(sp, decoded)
	u.RawQuery = q.Encode()
	e.deciphered.Add(1)
	return u.String(), nil
}

// transformN rewrites the n parameter of raw, keeping the original on failure.
func (e *Engine) transformN(raw string, p *player) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	nval := q.Get("n")
	if nval == "" {
		return raw
	}
	nout, err := p.n(nval)
	if err != nil {
		e.log.Debug("n transform skipped", map[string]any{"error": err.Error()})
		return raw
	}
	q.Set("n", nout)
	u.RawQuery = q.Encode()
	e.nTransformed.Add(1)
	return u.String()
}

// load returns the player for scriptURL, downloading it at most once per TTL
// window even under concurrent callers. The shared download is detached from
// any single caller; each caller stops waiting when its own ctx ends.
func (e *Engine) load(ctx context.Context, scriptURL string) (*player, error) {
	if p, ok := e.cache.get(scriptURL); ok {
		e.hits.Add(1)
		return p, nil
	}
	ch := e.group.DoChan(scriptURL, func() (any, error) {
		if p, ok := e.cache.get(scriptURL); ok {
			e.hits.Add(1)
			return p, nil
		}
		e.fetches.Add(1)
		dctx, cancel := e.downloadContext(ctx)
		defer cancel()
		body, err := downloadScript(dctx, e.client, scriptURL)
		if err != nil {
			return nil, err
		}
		p := newPlayer(scriptURL, body)
		e.cache.put(scriptURL, p)
		e.log.Info("Player script loaded", map[string]any{"script": scriptURL, "bytes": len(body)})
		return p, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*player), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(ErrCodePlayerJSTimeout, "player script download timed out", ctx.Err().Error())
		}
		return nil, NewError(ErrCodePlayerJSDownload, "player script wait cancelled", ctx.Err().Error())
	}
}

// downloadContext keeps ctx values but not its cancellation, bounded by the
// client timeout or DefaultScriptTimeout.
func (e *Engine) downloadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.client.Timeout
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
