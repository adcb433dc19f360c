package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"termbroker/internal/terminal"
	"termbroker/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TerminalSessionRecord{}))
	return New(db)
}

func TestStoreUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := terminal.Record{
		ID: "s1", Owner: "alice", Name: "main",
		Active: true, PID: 1234, Cwd: "/home/alice",
		Rows: 24, Cols: 80, CreatedAt: now, LastActivity: now,
	}
	require.NoError(t, s.Upsert(ctx, rec))

	got, ok, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Owner, got.Owner)
	require.Equal(t, rec.Rows, got.Rows)
}

func TestStoreGetMissingReturnsFalseNotError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreUpdateBufferAndWinsize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, terminal.Record{ID: "s1", Owner: "alice", Active: true}))

	require.NoError(t, s.UpdateBuffer(ctx, "s1", "hello world"))
	require.NoError(t, s.UpdateWinsize(ctx, "s1", 40, 120))

	got, ok, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello world", got.Buffer)
	require.EqualValues(t, 40, got.Rows)
	require.EqualValues(t, 120, got.Cols)
}

func TestStoreMarkInactiveExcludesFromListActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, terminal.Record{ID: "s1", Owner: "alice", Active: true}))
	require.NoError(t, s.Upsert(ctx, terminal.Record{ID: "s2", Owner: "alice", Active: true}))

	require.NoError(t, s.MarkInactive(ctx, "s1"))

	list, err := s.ListActive(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "s2", list[0].ID)
}

func TestStoreListActiveFiltersByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, terminal.Record{ID: "s1", Owner: "alice", Active: true}))
	require.NoError(t, s.Upsert(ctx, terminal.Record{ID: "s2", Owner: "bob", Active: true}))

	list, err := s.ListActive(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "s2", list[0].ID)
}
