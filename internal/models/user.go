package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status enumerates the review states of an account claim.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether the status is one of the known review states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// UserRecord is an account claim awaiting or past review. The ID is assigned
// once at first registration and never reused; removal tombstones the record
// instead of deleting it so the audit trail stays resolvable.
type UserRecord struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"not null" json:"username"`
	// UsernameKey is the lowercase form used for case-insensitive lookups.
	UsernameKey string `gorm:"index;not null" json:"username_key"`
	Email       string `gorm:"not null" json:"email"`
	Status      Status `gorm:"not null;index" json:"status"`

	CreatedAt          time.Time  `json:"created_at"`
	LastStatusChangeAt time.Time  `json:"last_status_change_at"`
	DeletedAt          *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// Tombstoned reports whether the record has been logically removed.
func (u *UserRecord) Tombstoned() bool {
	return u != nil && u.DeletedAt != nil
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *UserRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.UsernameKey == "" {
		u.UsernameKey = NormalizeUsername(u.Username)
	}
	return nil
}

// NormalizeUsername lowers and trims a username for case-insensitive matching.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
