// Package store defines the durable storage contract for account claims and
// the audit trail. Two implementations exist with identical semantics: a
// flat-file snapshot store and a relational store. Business logic never
// branches on which one it holds.
package store

import (
	"context"
	"time"

	"github.com/kitemc/verifyd/internal/models"
)

// UserStore persists account claim records. Implementations serialize
// concurrent mutation with a single writer lock per store instance; readers
// observe either the pre- or post-mutation snapshot, never a torn one.
type UserStore interface {
	// GetAllUsers returns the live (non-tombstoned) records ordered by
	// creation time, consistent with the latest committed write.
	GetAllUsers(ctx context.Context) ([]models.UserRecord, error)

	// GetUserByUsername performs a case-insensitive lookup among live
	// records. Returns ErrNotFound when no live record matches.
	GetUserByUsername(ctx context.Context, username string) (*models.UserRecord, error)

	// GetUserByID returns the live record with the given account id,
	// or ErrNotFound (tombstoned records are not found).
	GetUserByID(ctx context.Context, id string) (*models.UserRecord, error)

	// RegisterUser inserts a new record. Returns ErrConflict when a live
	// record already holds the username (case-insensitive).
	RegisterUser(ctx context.Context, user *models.UserRecord) error

	// UpdateStatus sets the status of a live record. Transition validity is
	// the caller's responsibility. Returns ErrNotFound for unknown or
	// tombstoned ids.
	UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error

	// DeleteUser tombstones a live record, freeing its username for reuse.
	// Returns ErrNotFound for unknown or already tombstoned ids.
	DeleteUser(ctx context.Context, id string, at time.Time) error

	// Save durably commits pending in-memory mutations. Atomic: a crash
	// during Save leaves either the prior or the new durable state.
	// Idempotent and safe to call with no pending changes.
	Save(ctx context.Context) error
}

// AuditFilter narrows audit listings. Zero values match everything.
type AuditFilter struct {
	AccountID string
	Actor     string
	Action    models.AuditAction
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// AuditStore is an append-only log. Append is fail-fast: an entry is either
// accepted or the error surfaces to the caller, never silently dropped.
type AuditStore interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]models.AuditRecord, error)

	// Prune discards entries older than the cutoff and reports how many
	// were removed. Retention enforcement, not mutation: surviving entries
	// keep their sequence numbers.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	// Save flushes pending entries for snapshot-based implementations.
	Save(ctx context.Context) error
}
