package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"termbroker/internal/logging"
)

// ErrSessionClosed is returned for operations against a session whose PTY
// has already exited or been closed.
var ErrSessionClosed = errors.New("session closed")

// ErrSessionBusy is returned by Close when clients are still attached.
var ErrSessionBusy = errors.New("session has attached clients")

// Record mirrors one row of the terminal_session_records persistence table.
type Record struct {
	ID           string
	Owner        string
	Name         string
	Buffer       string
	LastActivity time.Time
	CreatedAt    time.Time
	Active       bool
	PID          int
	Cwd          string
	Rows, Cols   uint16
}

// PersistenceStore is the subset of the store package a Session and Manager
// need, kept as an interface here so this package never imports gorm.
type PersistenceStore interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	UpdateWinsize(ctx context.Context, id string, rows, cols uint16) error
	UpdateBuffer(ctx context.Context, id string, buffer string) error
	MarkInactive(ctx context.Context, id string) error
	ListActive(ctx context.Context, owner string) ([]Record, error)
}

// Session binds one PTY Device and its Output History, and tracks the read
// cursor of every attached client.
type Session struct {
	ID    string
	Owner string
	Name  string
	Cwd   string

	store PersistenceStore

	mu           sync.Mutex
	device       *Device
	history      *History
	clients      map[string]int64 // client id -> last delivered chunk index
	running      bool
	rows, cols   uint16
	createdAt    time.Time
	lastActivity time.Time
}

// NewSession builds a Session around a not-yet-started Device.
func NewSession(id, owner, name, cwd string, bufferSize int, store PersistenceStore) *Session {
	return &Session{
		ID:      id,
		Owner:   owner,
		Name:    name,
		Cwd:     cwd,
		store:   store,
		history: NewHistory(bufferSize),
		clients: make(map[string]int64),
	}
}

// Start forks the PTY device and writes the initial persistence record.
func (s *Session) Start(ctx context.Context, rows, cols uint16) error {
	dev, err := StartDevice(rows, cols, s.Cwd)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.device = dev
	s.running = true
	s.rows, s.cols = rows, cols
	s.createdAt = now
	s.lastActivity = now
	s.mu.Unlock()

	if err := s.store.Upsert(ctx, Record{
		ID:           s.ID,
		Owner:        s.Owner,
		Name:         s.Name,
		LastActivity: now,
		CreatedAt:    now,
		Active:       true,
		PID:          dev.Pid(),
		Cwd:          s.Cwd,
		Rows:         rows,
		Cols:         cols,
	}); err != nil {
		logging.S().Warnw("persist session start failed", "session_id", s.ID, "err", err)
	}
	return nil
}

// Attach registers clientID at the current head index and returns the
// backlog it should render before switching to live reads. Re-attaching an
// already-known client id resets its cursor to the current head; it does
// not duplicate delivery.
func (s *Session) Attach(clientID string) []byte {
	s.mu.Lock()
	s.clients[clientID] = s.history.HeadIndex()
	s.mu.Unlock()
	return s.history.Replay()
}

// Detach removes clientID from the attached set and flushes the current
// replay buffer to persistence. It never closes the PTY, even if this was
// the last attached client.
func (s *Session) Detach(ctx context.Context, clientID string) {
	s.mu.Lock()
	delete(s.clients, clientID)
	s.mu.Unlock()

	if err := s.store.UpdateBuffer(ctx, s.ID, string(s.history.Replay())); err != nil {
		logging.S().Warnw("persist detach flush failed", "session_id", s.ID, "err", err)
	}
}

// Write forwards p to the PTY if the child is alive.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.device == nil || !s.device.IsAlive() {
		return ErrSessionClosed
	}
	s.device.Write(p)
	s.lastActivity = time.Now()
	return nil
}

// Resize forwards a window size change to the PTY and persists it.
func (s *Session) Resize(ctx context.Context, rows, cols uint16) error {
	s.mu.Lock()
	if !s.running || s.device == nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	err := s.device.SetWinsize(rows, cols)
	if err == nil {
		s.rows, s.cols = rows, cols
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.store.UpdateWinsize(ctx, s.ID, rows, cols); err != nil {
		logging.S().Warnw("persist resize failed", "session_id", s.ID, "err", err)
	}
	return nil
}

// ReadFor returns output appended since clientID's last read, advancing its
// cursor. It returns nil if clientID is not attached or nothing is new.
func (s *Session) ReadFor(clientID string) []byte {
	s.mu.Lock()
	cursor, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	data, newCursor := s.history.Fetch(cursor)
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	if _, stillAttached := s.clients[clientID]; stillAttached {
		s.clients[clientID] = newCursor
	}
	s.mu.Unlock()
	return data
}

// Close tears down the PTY device, but refuses while clients remain
// attached.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if len(s.clients) > 0 {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.running = false
	dev := s.device
	s.mu.Unlock()

	if dev != nil {
		dev.Close()
	}
	if err := s.store.MarkInactive(ctx, s.ID); err != nil {
		logging.S().Warnw("persist close failed", "session_id", s.ID, "err", err)
	}
	return nil
}

// ForceClose tears down the PTY unconditionally, used by the Manager for
// expiry sweeps where lingering attachments should not block cleanup.
func (s *Session) ForceClose(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	dev := s.device
	s.clients = make(map[string]int64)
	s.mu.Unlock()

	if dev != nil {
		dev.Close()
	}
	if err := s.store.MarkInactive(ctx, s.ID); err != nil {
		logging.S().Warnw("persist force-close failed", "session_id", s.ID, "err", err)
	}
}

// IsAlive reports whether the underlying PTY child is still running.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.device != nil && s.device.IsAlive()
}

// ClientCount returns the number of currently attached clients.
func (s *Session) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// LastActivity returns the time of the most recent write or PTY output.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Device exposes the underlying PTY device for the Background Reader.
func (s *Session) Device() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Append feeds bytes read from the PTY into the history and bumps the
// activity timestamp. Called only by the session's Background Reader.
func (s *Session) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	s.history.Append(b)
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// ReplayBuffer returns the current flat replay bytes, used by the
// Background Reader's periodic flush.
func (s *Session) ReplayBuffer() []byte {
	return s.history.Replay()
}

// Snapshot is a read-only view of session metadata for status/list APIs.
type Snapshot struct {
	ID               string
	Owner            string
	Name             string
	Rows, Cols       uint16
	PID              int
	Running          bool
	LastActivity     time.Time
	CreatedAt        time.Time
	ConnectedClients int
}

// Snapshot captures the session's current metadata.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid := 0
	if s.device != nil {
		pid = s.device.Pid()
	}
	return Snapshot{
		ID:               s.ID,
		Owner:            s.Owner,
		Name:             s.Name,
		Rows:             s.rows,
		Cols:             s.cols,
		PID:              pid,
		Running:          s.running,
		LastActivity:     s.lastActivity,
		CreatedAt:        s.createdAt,
		ConnectedClients: len(s.clients),
	}
}
