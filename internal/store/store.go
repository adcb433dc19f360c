// Package store persists terminal session metadata and replay buffers with
// GORM, implementing the terminal.PersistenceStore interface so the
// terminal package itself never imports gorm.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"termbroker/internal/terminal"
	"termbroker/pkg/models"
)

// Store is the GORM-backed terminal.PersistenceStore.
type Store struct {
	db *gorm.DB
}

// New wraps db for use as a terminal.PersistenceStore.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func toRecord(r models.TerminalSessionRecord) terminal.Record {
	return terminal.Record{
		ID:           r.ID,
		Owner:        r.Owner,
		Name:         r.Name,
		Buffer:       r.Buffer,
		LastActivity: r.LastActivity,
		CreatedAt:    r.CreatedAt,
		Active:       r.Active,
		PID:          r.PID,
		Cwd:          r.Cwd,
		Rows:         r.Rows,
		Cols:         r.Cols,
	}
}

func fromRecord(rec terminal.Record) models.TerminalSessionRecord {
	return models.TerminalSessionRecord{
		ID:           rec.ID,
		Owner:        rec.Owner,
		Name:         rec.Name,
		Buffer:       rec.Buffer,
		LastActivity: rec.LastActivity,
		CreatedAt:    rec.CreatedAt,
		Active:       rec.Active,
		PID:          rec.PID,
		Cwd:          rec.Cwd,
		Rows:         rec.Rows,
		Cols:         rec.Cols,
	}
}

// fresh returns a handle scoped to this call, so one goroutine's in-flight
// write never leaks session state (prepared statements, deferred clauses)
// into another's.
func (s *Store) fresh(ctx context.Context) *gorm.DB {
	return s.db.Session(&gorm.Session{NewDB: true}).WithContext(ctx)
}

// Upsert creates or fully replaces the row for rec.ID.
func (s *Store) Upsert(ctx context.Context, rec terminal.Record) error {
	row := fromRecord(rec)
	return s.fresh(ctx).Save(&row).Error
}

// Get loads the row for id. A missing row reports (zero, false, nil), not
// an error, since "not found" is routine for expired or unknown sessions.
func (s *Store) Get(ctx context.Context, id string) (terminal.Record, bool, error) {
	var row models.TerminalSessionRecord
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return terminal.Record{}, false, nil
	}
	if err != nil {
		return terminal.Record{}, false, err
	}
	return toRecord(row), true, nil
}

// UpdateWinsize persists a resize.
func (s *Store) UpdateWinsize(ctx context.Context, id string, rows, cols uint16) error {
	return s.fresh(ctx).Model(&models.TerminalSessionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"rows":          rows,
			"cols":          cols,
			"last_activity": time.Now(),
		}).Error
}

// UpdateBuffer persists the current flat replay buffer, used by the
// Background Reader's periodic flush and on detach.
func (s *Store) UpdateBuffer(ctx context.Context, id string, buffer string) error {
	return s.fresh(ctx).Model(&models.TerminalSessionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"buffer":        buffer,
			"last_activity": time.Now(),
		}).Error
}

// MarkInactive flips a session's active flag off without deleting its row;
// Manager.Reconnect then reports that id as not found.
func (s *Store) MarkInactive(ctx context.Context, id string) error {
	return s.fresh(ctx).Model(&models.TerminalSessionRecord{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// ListActive returns every active row, optionally filtered to owner.
func (s *Store) ListActive(ctx context.Context, owner string) ([]terminal.Record, error) {
	q := s.fresh(ctx).Where("active = ?", true)
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}
	var rows []models.TerminalSessionRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]terminal.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRecord(row))
	}
	return out, nil
}
