package terminal

import (
	"context"
	"testing"
	"time"
)

type fakeConfig struct {
	timeout time.Duration
	buffer  int
}

func (c fakeConfig) SessionTimeout(context.Context) time.Duration { return c.timeout }
func (c fakeConfig) BufferSize(context.Context) int               { return c.buffer }

func TestManagerReconnectUnknownSessionIsNotFound(t *testing.T) {
	m := NewManager(newFakeStore(), fakeConfig{timeout: time.Minute, buffer: 100})
	_, _, err := m.Reconnect(context.Background(), "missing", "alice")
	if err != ErrNotFound {
		t.Fatalf("Reconnect() on unknown id = %v, want ErrNotFound", err)
	}
}

func TestManagerReconnectRejectsWrongOwner(t *testing.T) {
	store := newFakeStore()
	_ = store.Upsert(context.Background(), Record{
		ID: "s1", Owner: "alice", Active: true, LastActivity: time.Now(),
	})
	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})

	_, _, err := m.Reconnect(context.Background(), "s1", "mallory")
	if err != ErrNotFound {
		t.Fatalf("Reconnect() with wrong owner = %v, want ErrNotFound", err)
	}
}

func TestManagerReconnectExpiresStaleRecord(t *testing.T) {
	store := newFakeStore()
	_ = store.Upsert(context.Background(), Record{
		ID: "s1", Owner: "alice", Active: true,
		LastActivity: time.Now().Add(-time.Hour),
	})
	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})

	_, _, err := m.Reconnect(context.Background(), "s1", "alice")
	if err != ErrExpired {
		t.Fatalf("Reconnect() on stale record = %v, want ErrExpired", err)
	}
	rec, _, _ := store.Get(context.Background(), "s1")
	if rec.Active {
		t.Fatal("expected expired session to be marked inactive")
	}
}

func TestManagerReconnectReturnsPersistedBufferWhenNotLive(t *testing.T) {
	store := newFakeStore()
	_ = store.Upsert(context.Background(), Record{
		ID: "s1", Owner: "alice", Active: true,
		Buffer:       "previous output",
		LastActivity: time.Now(),
	})
	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})

	sess, buf, err := m.Reconnect(context.Background(), "s1", "alice")
	if err != nil {
		t.Fatalf("Reconnect() = %v, want nil", err)
	}
	if sess != nil {
		t.Fatal("Reconnect() for a not-live session should not return a live Session")
	}
	if string(buf) != "previous output" {
		t.Fatalf("Reconnect() buffer = %q, want %q", buf, "previous output")
	}
}

func TestManagerListFiltersStaleAndOtherOwners(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	_ = store.Upsert(context.Background(), Record{ID: "fresh", Owner: "alice", Active: true, LastActivity: now})
	_ = store.Upsert(context.Background(), Record{ID: "stale", Owner: "alice", Active: true, LastActivity: now.Add(-time.Hour)})
	_ = store.Upsert(context.Background(), Record{ID: "other", Owner: "bob", Active: true, LastActivity: now})

	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})
	list, err := m.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(list) != 1 || list[0].ID != "fresh" {
		t.Fatalf("List() = %+v, want only the fresh alice session", list)
	}
}

func TestManagerCloseRemovesFromRegistryAndStopsReader(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})

	stopCh := make(chan struct{})
	sess := NewSession("s1", "alice", "main", "", 100, store)
	m.mu.Lock()
	m.sessions["s1"] = &liveSession{session: sess, stopCh: stopCh}
	m.mu.Unlock()
	_ = store.Upsert(context.Background(), Record{ID: "s1", Owner: "alice", Active: true, LastActivity: time.Now()})

	m.Close(context.Background(), "s1")

	m.mu.Lock()
	_, ok := m.sessions["s1"]
	m.mu.Unlock()
	if ok {
		t.Fatal("Close() should remove the session from the registry")
	}
	select {
	case <-stopCh:
	default:
		t.Fatal("Close() should have closed the reader's stop channel")
	}
	rec, _, _ := store.Get(context.Background(), "s1")
	if rec.Active {
		t.Fatal("Close() should mark the persisted record inactive")
	}
}

func TestManagerDetachAndMaybeCloseOnlyClosesWhenLastClientLeaves(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, fakeConfig{timeout: time.Minute, buffer: 100})

	stopCh := make(chan struct{})
	sess := NewSession("s1", "alice", "main", "", 100, store)
	sess.Attach("c1")
	sess.Attach("c2")
	m.mu.Lock()
	m.sessions["s1"] = &liveSession{session: sess, stopCh: stopCh}
	m.mu.Unlock()

	m.DetachAndMaybeClose(context.Background(), "s1", "c1")
	m.mu.Lock()
	_, ok := m.sessions["s1"]
	m.mu.Unlock()
	if !ok {
		t.Fatal("session should still be registered while c2 remains attached")
	}

	m.DetachAndMaybeClose(context.Background(), "s1", "c2")
	m.mu.Lock()
	_, ok = m.sessions["s1"]
	m.mu.Unlock()
	if ok {
		t.Fatal("session should be closed once the last client detaches")
	}
}
