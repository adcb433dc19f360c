// Package models holds the GORM row types persisted by the broker: the
// accounts that authenticate and the terminal sessions they own.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that can authenticate and own terminal sessions.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`

	IsActive bool `json:"is_active" gorm:"default:true"`
	IsAdmin  bool `json:"is_admin" gorm:"default:false"`
}

// TerminalSessionRecord is the persisted counterpart of a terminal.Session:
// enough state to report status while the PTY is live, and to restore a
// replay buffer after this process restarts and the PTY is gone.
type TerminalSessionRecord struct {
	ID           string    `json:"id" gorm:"primarykey"`
	Owner        string    `json:"owner" gorm:"index;not null"`
	Name         string    `json:"name"`
	Cwd          string    `json:"cwd"`
	Buffer       string    `json:"-" gorm:"type:text"`
	PID          int       `json:"pid"`
	Rows         uint16    `json:"rows"`
	Cols         uint16    `json:"cols"`
	Active       bool      `json:"active" gorm:"index;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity" gorm:"index"`
}
