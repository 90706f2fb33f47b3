package models

import "time"

// AuditAction names the mutation recorded by an audit entry.
type AuditAction string

const (
	AuditRegister     AuditAction = "register"
	AuditApprove      AuditAction = "approve"
	AuditReject       AuditAction = "reject"
	AuditRemove       AuditAction = "remove"
	AuditCodeIssued   AuditAction = "code-issued"
	AuditCodeVerified AuditAction = "code-verified"
	AuditCodeFailed   AuditAction = "code-failed"
	AuditSyncFailed   AuditAction = "sync-failed"
)

// AuditRecord is append-only and immutable once written. The sequence number
// is assigned by the audit store and increases monotonically per store.
type AuditRecord struct {
	Seq       uint64      `gorm:"primaryKey;autoIncrement" json:"seq"`
	Timestamp time.Time   `gorm:"index" json:"timestamp"`
	Actor     string      `gorm:"not null" json:"actor"`
	AccountID string      `gorm:"index" json:"account_id"`
	Action    AuditAction `gorm:"not null;index" json:"action"`
	Detail    string      `json:"detail,omitempty"`
}
