package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ytget/ytstreams/cookies"
	"github.com/ytget/ytstreams/internal/logger"
)

// DefaultInterval is how often cookies are re-fetched.
const DefaultInterval = 5 * time.Hour

// State is the lifecycle state of the cookie set.
type State int

const (
	Uninitialized State = iota
	Ready
	Stale
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Stale:
		return "stale"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState is the inverse of State.String.
func ParseState(s string) State {
	switch s {
	case "ready":
		return Ready
	case "stale":
		return Stale
	default:
		return Uninitialized
	}
}

// Snapshot is an immutable view of the session. Jar must be treated as
// read-only by callers other than the agent it is bound to.
type Snapshot struct {
	State       State
	Header      string
	Jar         *cookies.Jar
	Cookies     int
	RefreshedAt time.Time
	AttemptedAt time.Time
	LastError   error
	// Generation increments on every successful refresh.
	Generation uint64
}

// Ready reports whether a cookie set, possibly stale, is available.
func (s Snapshot) Ready() bool {
	return s.State != Uninitialized
}

// Source produces cookie records.
type Source interface {
	Fetch(ctx context.Context) ([]cookies.Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]cookies.Record, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) ([]cookies.Record, error) {
	return f(ctx)
}

// Attempt describes one refresh.
type Attempt struct {
	At      time.Time `json:"at"`
	OK      bool      `json:"ok"`
	Cookies int       `json:"cookies"`
	State   State     `json:"state"`
	Error   string    `json:"error,omitempty"`
}

// Recorder persists refresh attempts.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets the refresh period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = logger.For(l, logger.ComponentSession)
	}
}

// WithRecorder stores every refresh attempt in r.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager is the single writer of the session state.
type Manager struct {
	src      Source
	interval time.Duration
	log      *logger.ComponentLogger
	recorder Recorder
	now      func() time.Time

	mu    sync.Mutex // serializes refreshes
	state atomic.Pointer[Snapshot]

	started atomic.Bool
	done    chan struct{}
}

// NewManager returns an uninitialized manager reading from src.
func NewManager(src Source, opts ...Option) *Manager {
	m := &Manager{
		src:      src,
		interval: DefaultInterval,
		log:      logger.WithComponent(logger.ComponentSession),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&Snapshot{State: Uninitialized})
	return m
}

// Interval returns the refresh period.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Start refreshes immediately in the background and then every interval
// until ctx is cancelled. Only the first call has an effect.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.loop(ctx)
}

// Wait blocks until the refresh loop started by Start exits. It returns
// immediately if Start was never called.
func (m *Manager) Wait() {
	if !m.started.Load() {
		return
	}
	<-m.done
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)

	_ = m.Refresh(ctx)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("refresh loop stopped")
			return
		case <-t.C:
			_ = m.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch from the source. The returned error is also
// recorded in the snapshot; a failure never discards a previous cookie set.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src == nil {
		return m.fail(ctx, errors.New("no cookie source configured"))
	}

	records, err := m.src.Fetch(ctx)
	if err != nil {
		return m.fail(ctx, err)
	}
	jar, err := cookies.BuildJar(records)
	if err != nil {
		return m.fail(ctx, err)
	}

	prev := m.state.Load()
	now := m.now()
	next := &Snapshot{
		State:       Ready,
		Header:      jar.Header(),
		Jar:         jar,
		Cookies:     jar.Len(),
		RefreshedAt: now,
		AttemptedAt: now,
		Generation:  prev.Generation + 1,
	}
	m.state.Store(next)

	m.log.Info("cookies fetched and ready", map[string]interface{}{
		"cookies":    next.Cookies,
		"generation": next.Generation,
	})
	m.record(ctx, Attempt{At: now, OK: true, Cookies: next.Cookies, State: Ready})
	return nil
}

// fail records err without touching the cookie set. Must hold m.mu.
func (m *Manager) fail(ctx context.Context, err error) error {
	prev := m.state.Load()
	next := *prev
	next.AttemptedAt = m.now()
	next.LastError = err
	if prev.Ready() {
		next.State = Stale
	}
	m.state.Store(&next)

	m.log.Error("failed to fetch cookies", map[string]interface{}{
		"error": err.Error(),
		"state": next.State.String(),
	})
	m.record(ctx, Attempt{
		At:      next.AttemptedAt,
		Cookies: next.Cookies,
		State:   next.State,
		Error:   err.Error(),
	})
	return fmt.Errorf("refresh cookies: %w", err)
}

func (m *Manager) record(ctx context.Context, a Attempt) {
	if m.recorder == nil {
		return
	}
	// a cancelled loop context must not lose the final attempt
	if err := m.recorder.Record(context.WithoutCancel(ctx), a); err != nil {
		m.log.Warn("failed to record refresh attempt", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Snapshot returns the current state without locking.
func (m *Manager) Snapshot() Snapshot {
	return *m.state.Load()
}

// IsReady reports whether at least one refresh has succeeded.
func (m *Manager) IsReady() bool {
	return m.state.Load().Ready()
}

// CookieHeader returns the header of the last successful refresh.
func (m *Manager) CookieHeader() string {
	return m.state.Load().Header
}
