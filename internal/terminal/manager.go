package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"termbroker/internal/logging"
)

// ErrNotFound is returned by Reconnect when no matching session exists.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned by Reconnect when the persisted session has aged
// past the configured timeout.
var ErrExpired = errors.New("session expired")

// ConfigSource supplies the session_timeout/buffer_size pair without a
// process restart. buffer_size is read when Create starts a new session;
// session_timeout is read on every Reconnect, List and Cleanup. Attaching
// to a session that is already live reads neither, and a running session
// keeps the buffer size it was created with.
type ConfigSource interface {
	SessionTimeout(ctx context.Context) time.Duration
	BufferSize(ctx context.Context) int
}

type liveSession struct {
	session *Session
	stopCh  chan struct{}
}

// Manager is the process-wide registry mapping session id to the live
// Session, plus its Background Reader lifecycle.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	store    PersistenceStore
	config   ConfigSource
}

// NewManager builds an empty registry backed by store and config.
func NewManager(store PersistenceStore, config ConfigSource) *Manager {
	return &Manager{
		sessions: make(map[string]*liveSession),
		store:    store,
		config:   config,
	}
}

// Create starts a new session under id, or returns the existing live one if
// id is still alive. A dead entry under the same id is replaced.
func (m *Manager) Create(ctx context.Context, id, owner, name, cwd string, rows, cols uint16) (*Session, error) {
	m.mu.Lock()
	if ls, ok := m.sessions[id]; ok {
		if ls.session.IsAlive() {
			m.mu.Unlock()
			return ls.session, nil
		}
		delete(m.sessions, id)
		m.mu.Unlock()
		close(ls.stopCh)
		ls.session.ForceClose(ctx)
	} else {
		m.mu.Unlock()
	}

	bufferSize := m.config.BufferSize(ctx)
	sess := NewSession(id, owner, name, cwd, bufferSize, m.store)
	if err := sess.Start(ctx, rows, cols); err != nil {
		return nil, err
	}

	stopCh := make(chan struct{})
	m.mu.Lock()
	m.sessions[id] = &liveSession{session: sess, stopCh: stopCh}
	m.mu.Unlock()

	go RunBackgroundReader(ctx, sess, stopCh)
	logging.S().Infow("terminal session created", "session_id", id, "owner", owner)
	return sess, nil
}

// Get returns the live session for id, if it exists and is still alive.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	ls, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || !ls.session.IsAlive() {
		return nil, false
	}
	return ls.session, true
}

// Reconnect resolves id to either its live Session (returning its current
// replay buffer) or, if not live, its persisted record, re-validating
// ownership and the configured session_timeout before reporting it usable.
func (m *Manager) Reconnect(ctx context.Context, id, owner string) (*Session, []byte, error) {
	if sess, ok := m.Get(id); ok {
		if sess.Owner != owner {
			return nil, nil, ErrNotFound
		}
		return sess, sess.ReplayBuffer(), nil
	}

	rec, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok || !rec.Active || rec.Owner != owner {
		return nil, nil, ErrNotFound
	}
	if time.Since(rec.LastActivity) > m.config.SessionTimeout(ctx) {
		_ = m.store.MarkInactive(ctx, id)
		return nil, nil, ErrExpired
	}
	return nil, []byte(rec.Buffer), nil
}

// ListedSession pairs a persisted record with whether it currently has a
// live PTY behind it.
type ListedSession struct {
	Record
	Running bool
}

// List returns persisted sessions for owner (all owners if empty), omitting
// anything stale past the configured session_timeout.
func (m *Manager) List(ctx context.Context, owner string) ([]ListedSession, error) {
	timeout := m.config.SessionTimeout(ctx)
	recs, err := m.store.ListActive(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]ListedSession, 0, len(recs))
	for _, rec := range recs {
		if time.Since(rec.LastActivity) > timeout {
			continue
		}
		_, running := m.Get(rec.ID)
		out = append(out, ListedSession{Record: rec, Running: running})
	}
	return out, nil
}

// Detach removes clientID from id's attached set without attempting to
// close the session, for a plain client disconnect.
func (m *Manager) Detach(ctx context.Context, id, clientID string) {
	if sess, ok := m.Get(id); ok {
		sess.Detach(ctx, clientID)
	}
}

// DetachAndMaybeClose handles an explicit client-initiated close: it
// detaches clientID, then closes and deregisters the session if that was
// the last attached client.
func (m *Manager) DetachAndMaybeClose(ctx context.Context, id, clientID string) {
	m.mu.Lock()
	ls, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	ls.session.Detach(ctx, clientID)
	if ls.session.ClientCount() > 0 {
		return
	}
	if err := ls.session.Close(ctx); err != nil {
		return
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	close(ls.stopCh)
}

// Close forcibly tears down and deregisters id regardless of attached
// clients, used for administrative cleanup.
func (m *Manager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	ls, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	close(ls.stopCh)
	ls.session.ForceClose(ctx)
}

// Count returns the number of live sessions currently registered.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AttachedClientCount sums the attached client count across every live
// session, for reporting overall WebSocket fan-out.
func (m *Manager) AttachedClientCount() int {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, ls := range m.sessions {
		sessions = append(sessions, ls.session)
	}
	m.mu.Unlock()

	total := 0
	for _, sess := range sessions {
		total += sess.ClientCount()
	}
	return total
}

// Cleanup sweeps both the live registry and the persistence store for
// sessions idle past session_timeout, closing live ones and marking
// persisted-only ones inactive.
func (m *Manager) Cleanup(ctx context.Context) {
	timeout := m.config.SessionTimeout(ctx)

	m.mu.Lock()
	stale := make([]string, 0)
	for id, ls := range m.sessions {
		if !ls.session.IsAlive() || time.Since(ls.session.LastActivity()) > timeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.Close(ctx, id)
	}

	recs, err := m.store.ListActive(ctx, "")
	if err != nil {
		logging.S().Warnw("cleanup: list active sessions failed", "err", err)
		return
	}
	for _, rec := range recs {
		if time.Since(rec.LastActivity) > timeout {
			if err := m.store.MarkInactive(ctx, rec.ID); err != nil {
				logging.S().Warnw("cleanup: mark inactive failed", "session_id", rec.ID, "err", err)
			}
		}
	}
}
