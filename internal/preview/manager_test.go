package preview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerOpenAndClose(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 10}), time.Minute, time.Minute)

	s, err := m.Open(context.Background(), "user-1", "user-1/dialog", testSource, 3)
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())

	got, ok := m.Get(s.ID(), "user-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, m.Close(s.ID(), "user-1"))
	_, ok = m.Get(s.ID(), "user-1")
	assert.False(t, ok)
	assert.True(t, s.Closed())
}

func TestManagerReopenBuildsFreshSession(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 10}), time.Minute, time.Minute)

	first, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
	require.NoError(t, err)
	second, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.True(t, first.Closed())
	_, ok := m.Get(first.ID(), "user-1")
	assert.False(t, ok)
	_, ok = m.Get(second.ID(), "user-1")
	assert.True(t, ok)
}

func TestManagerStaleLoadDoesNotOverwriteNewerSession(t *testing.T) {
	fetcher := &gatedFetcher{gate: make(chan struct{})}
	p := newPipeline(&fakeDoc{pages: 10})
	p.Fetcher = fetcher
	m := NewManager(p, time.Minute, time.Minute)

	type result struct {
		s   *Session
		err error
	}
	stale := make(chan result, 1)
	go func() {
		s, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
		stale <- result{s, err}
	}()
	require.Eventually(t, func() bool { return fetcher.waiting() == 1 }, time.Second, 10*time.Millisecond)

	fresh, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
	require.NoError(t, err)
	close(fetcher.gate)

	old := <-stale
	assert.ErrorIs(t, old.err, ErrSessionClosed)
	assert.True(t, old.s.Closed())
	assert.Equal(t, 0, old.s.RenderedCount())

	assert.Equal(t, StateReady, fresh.State())
	assert.Equal(t, 3, fresh.RenderedCount())
	got, ok := m.Get(fresh.ID(), "user-1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestManagerDialogsAreIndependent(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 4}), time.Minute, time.Minute)

	a, err := m.Open(context.Background(), "alice", "alice/d1", testSource, 3)
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "bob", "bob/d1", testSource, 3)
	require.NoError(t, err)

	assert.False(t, a.Closed())
	assert.False(t, b.Closed())
	assert.Equal(t, 2, m.Len())
}

func TestManagerRecordsLoadFailureOnSession(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 0}), time.Minute, time.Minute)

	s, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, s.State())
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 1}), 20*time.Millisecond, 5*time.Millisecond)

	s, err := m.Open(context.Background(), "user-1", "dialog", testSource, 3)
	require.NoError(t, err)

	require.Eventually(t, s.Closed, time.Second, 5*time.Millisecond)
	_, ok := m.Get(s.ID(), "user-1")
	assert.False(t, ok)
}

func TestManagerCloseUnknownIsNoop(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 1}), time.Minute, time.Minute)
	assert.False(t, m.Close("missing", "user-1"))
}

func TestManagerHidesSessionsFromOtherOwners(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 4}), time.Minute, time.Minute)

	s, err := m.Open(context.Background(), "admin-1", "admin-1/d1", testSource, 3)
	require.NoError(t, err)

	for _, owner := range []string{"", "reader-1"} {
		_, ok := m.Get(s.ID(), owner)
		assert.False(t, ok, "owner %q", owner)
		assert.False(t, m.Close(s.ID(), owner), "owner %q", owner)
	}
	assert.False(t, s.Closed())
	got, ok := m.Get(s.ID(), "admin-1")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestManagerEmptyDialogKeyNeverSupersedes(t *testing.T) {
	m := NewManager(newPipeline(&fakeDoc{pages: 4}), time.Minute, time.Minute)

	a, err := m.Open(context.Background(), "", "", testSource, 3)
	require.NoError(t, err)
	b, err := m.Open(context.Background(), "", "", testSource, 3)
	require.NoError(t, err)

	assert.False(t, a.Closed())
	assert.False(t, b.Closed())
	_, ok := m.Get(a.ID(), "")
	assert.True(t, ok)
	_, ok = m.Get(b.ID(), "")
	assert.True(t, ok)
}
