package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstreams/cookies"
	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/session"
)

func TestStore_RecordRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.sqlite"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, session.Attempt{At: base, OK: true, Cookies: 3, State: session.Ready}))
	require.NoError(t, s.Record(ctx, session.Attempt{At: base.Add(5 * time.Hour), OK: false, State: session.Stale, Error: "upstream request failed"}))
	require.NoError(t, s.Record(ctx, session.Attempt{At: base.Add(10 * time.Hour), OK: true, Cookies: 4, State: session.Ready}))

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, base.Add(10*time.Hour), got[0].At)
	assert.True(t, got[0].OK)
	assert.Equal(t, 4, got[0].Cookies)
	assert.Equal(t, session.Ready, got[0].State)

	assert.False(t, got[1].OK)
	assert.Equal(t, session.Stale, got[1].State)
	assert.Equal(t, "upstream request failed", got[1].Error)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), session.Attempt{At: time.Now(), OK: true, State: session.Ready}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("  ")
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	var nilStore *Store
	assert.NoError(t, nilStore.Close())
	assert.Error(t, nilStore.Record(context.Background(), session.Attempt{}))
}

func TestStore_AsRecorder(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	calls := 0
	m := session.NewManager(session.SourceFunc(func(context.Context) ([]cookies.Record, error) {
		calls++
		return []cookies.Record{{Name: "A", Value: "1"}}, nil
	}), session.WithRecorder(s), session.WithLogger(logger.Discard()))
	require.NoError(t, m.Refresh(context.Background()))

	got, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].OK)
	assert.Equal(t, 2, got[0].Cookies)
	assert.Equal(t, 1, calls)
}
