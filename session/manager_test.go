package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstreams/cookies"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
)

// scriptedSource replays bodies as if served by a cookie endpoint.
type scriptedSource struct {
	mu     sync.Mutex
	bodies []string
	calls  int
}

func (s *scriptedSource) Fetch(context.Context) ([]cookies.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := s.bodies[s.calls%len(s.bodies)]
	s.calls++
	if body == "" {
		return nil, fmt.Errorf("%w: connection refused", errs.ErrUpstreamRequest)
	}
	return cookies.DecodeRecords([]byte(body))
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (r *memRecorder) Record(_ context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return r.err
}

func newTestManager(src Source, opts ...Option) *Manager {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return NewManager(src, opts...)
}

func TestManager_InitialState(t *testing.T) {
	m := newTestManager(StaticSource{Text: "A=1"})
	assert.False(t, m.IsReady())
	assert.Equal(t, "", m.CookieHeader())
	assert.Equal(t, Uninitialized, m.Snapshot().State)
	assert.Equal(t, DefaultInterval, m.Interval())
}

func TestManager_EnvelopeScenario(t *testing.T) {
	m := newTestManager(&scriptedSource{bodies: []string{`{"cookies":[{"name":"A","value":"1"}]}`}})

	require.NoError(t, m.Refresh(context.Background()))
	assert.True(t, m.IsReady())
	assert.Contains(t, m.CookieHeader(), "A=1; SOCS=CAI")

	snap := m.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 2, snap.Cookies)
	require.NotNil(t, snap.Jar)
	assert.Equal(t, snap.Header, snap.Jar.Header())
}

func TestManager_FailedFirstFetchStaysUninitialized(t *testing.T) {
	m := newTestManager(&scriptedSource{bodies: []string{""}})

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamRequest))
	assert.False(t, m.IsReady())
	assert.Equal(t, Uninitialized, m.Snapshot().State)
	assert.Error(t, m.Snapshot().LastError)
}

func TestManager_MonotonicReadiness(t *testing.T) {
	src := &scriptedSource{bodies: []string{
		`[{"name":"A","value":"1"}]`,
		``,
		`{"unexpected":true}`,
		`"nope"`,
		``,
	}}
	m := newTestManager(src)

	require.NoError(t, m.Refresh(context.Background()))
	header := m.CookieHeader()
	gen := m.Snapshot().Generation

	for i := 0; i < 4; i++ {
		require.Error(t, m.Refresh(context.Background()))
		assert.True(t, m.IsReady(), "attempt %d", i)
		assert.Equal(t, Stale, m.Snapshot().State)
		assert.Equal(t, header, m.CookieHeader())
		assert.Equal(t, gen, m.Snapshot().Generation)
	}
}

func TestManager_InvalidShapeKeepsHeader(t *testing.T) {
	src := &scriptedSource{bodies: []string{
		`{"cookies":[{"name":"A","value":"1"}]}`,
		`{"data":"x"}`,
		`[{"name":"B","value":"2"}]`,
	}}
	m := newTestManager(src)

	require.NoError(t, m.Refresh(context.Background()))
	before := m.CookieHeader()

	err := m.Refresh(context.Background())
	require.True(t, errors.Is(err, errs.ErrInvalidUpstreamResponse))
	assert.Equal(t, before, m.CookieHeader())

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, Ready, m.Snapshot().State)
	assert.Equal(t, "B=2; SOCS=CAI", m.CookieHeader())
	assert.NoError(t, m.Snapshot().LastError)
	assert.Equal(t, uint64(2), m.Snapshot().Generation)
}

func TestManager_NilSource(t *testing.T) {
	m := newTestManager(nil)
	assert.Error(t, m.Refresh(context.Background()))
	assert.False(t, m.IsReady())
}

func TestManager_Recorder(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := newTestManager(&scriptedSource{bodies: []string{`[{"name":"A","value":"1"}]`, ``}},
		WithRecorder(rec), WithClock(func() time.Time { return now }))

	require.NoError(t, m.Refresh(context.Background()))
	require.Error(t, m.Refresh(context.Background()))

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, Attempt{At: now, OK: true, Cookies: 2, State: Ready}, rec.attempts[0])
	assert.False(t, rec.attempts[1].OK)
	assert.Equal(t, Stale, rec.attempts[1].State)
	assert.Contains(t, rec.attempts[1].Error, "connection refused")
	assert.Equal(t, now, m.Snapshot().RefreshedAt)
}

func TestManager_StartRefreshesImmediatelyAndPeriodically(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		fmt.Fprintf(w, `{"cookies":[{"name":"N","value":"%d"}]}`, n)
	}))
	defer srv.Close()

	m := newTestManager(&HTTPSource{URL: srv.URL}, WithInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.Start(ctx)

	require.Eventually(t, func() bool { return m.Snapshot().Generation >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.IsReady())

	cancel()
	m.Wait()
	final := hits.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, final, hits.Load(), "no refresh after cancellation")
}

func TestManager_WaitWithoutStart(t *testing.T) {
	m := newTestManager(StaticSource{})
	m.Wait()
}

func TestManager_ConcurrentReaders(t *testing.T) {
	m := newTestManager(&scriptedSource{bodies: []string{`[{"name":"A","value":"1"}]`, `[{"name":"A","value":"2"}]`}})
	require.NoError(t, m.Refresh(context.Background()))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := m.Snapshot()
				if snap.Jar == nil || snap.Header != snap.Jar.Header() {
					t.Errorf("torn snapshot: %q", snap.Header)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		_ = m.Refresh(context.Background())
	}
	close(stop)
	wg.Wait()
}

func TestStateString(t *testing.T) {
	for _, s := range []State{Uninitialized, Ready, Stale} {
		assert.Equal(t, s, ParseState(s.String()))
	}
}
