package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultSessionTTL     = 30 * time.Minute
	DefaultSessionCleanup = 10 * time.Minute
)

type entry struct {
	session   *Session
	owner     string
	dialogKey string
}

// Manager tracks open preview sessions. A session is visible only to the owner
// that opened it. Each non-empty dialog key has at most one live session;
// opening a new one closes the previous session and cancels its load.
type Manager struct {
	pipeline *Pipeline
	sessions *cache.Cache

	mu      sync.Mutex
	dialogs map[string]string
	cancels map[string]context.CancelFunc
}

// NewManager creates a Manager whose idle sessions expire after ttl.
func NewManager(p *Pipeline, ttl, cleanup time.Duration) *Manager {
	m := &Manager{
		pipeline: p,
		sessions: cache.New(ttl, cleanup),
		dialogs:  make(map[string]string),
		cancels:  make(map[string]context.CancelFunc),
	}
	m.sessions.OnEvicted(m.evicted)
	return m
}

func (m *Manager) evicted(id string, v interface{}) {
	e := v.(*entry)
	e.session.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.dialogKey != "" && m.dialogs[e.dialogKey] == id {
		delete(m.dialogs, e.dialogKey)
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

// Open starts a fresh session for src owned by owner and loads it. An empty
// dialogKey opens a session that nothing supersedes. Load failures are
// recorded on the session, not returned. ErrSessionClosed is returned if a
// newer open for the same dialog superseded this one.
func (m *Manager) Open(ctx context.Context, owner, dialogKey string, src SourceRef, pageCap int) (*Session, error) {
	s, err := NewSession(src, pageCap)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("sessionId", s.ID(), "owner", owner, "dialogId", dialogKey, "source", src.String())

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.sessions.Set(s.ID(), &entry{session: s, owner: owner, dialogKey: dialogKey}, cache.DefaultExpiration)

	m.mu.Lock()
	var prev string
	if dialogKey != "" {
		prev = m.dialogs[dialogKey]
		m.dialogs[dialogKey] = s.ID()
	}
	m.cancels[s.ID()] = cancel
	m.mu.Unlock()

	if prev != "" {
		logCtx.Info("Superseding previous preview session.", "previousSessionId", prev)
		m.sessions.Delete(prev)
	}

	logCtx.Info("Loading preview session.", "pageCap", pageCap)
	err = s.Load(loadCtx, m.pipeline)

	m.mu.Lock()
	delete(m.cancels, s.ID())
	m.mu.Unlock()

	switch {
	case errors.Is(err, ErrSessionClosed):
		logCtx.Info("Preview session closed before load finished; result discarded.")
		return s, err
	case err != nil:
		logCtx.Warn("Preview session failed.", "error", err)
	default:
		logCtx.Info("Preview session ready.", "renderedPages", s.RenderedCount())
	}
	return s, nil
}

// Get returns a live session opened by owner and extends its expiry. Sessions
// of other owners are reported as missing.
func (m *Manager) Get(id, owner string) (*Session, bool) {
	e, ok := m.lookup(id, owner)
	if !ok {
		return nil, false
	}
	m.sessions.Set(id, e, cache.DefaultExpiration)
	return e.session, true
}

// Close discards a session opened by owner. It reports false when there is no
// such session.
func (m *Manager) Close(id, owner string) bool {
	if _, ok := m.lookup(id, owner); !ok {
		return false
	}
	m.sessions.Delete(id)
	return true
}

func (m *Manager) lookup(id, owner string) (*entry, bool) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.owner != owner || e.session.Closed() {
		return nil, false
	}
	return e, true
}

// Len reports the number of tracked sessions, expired or not.
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}
