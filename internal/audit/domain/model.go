package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType represents who triggered an action.
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Status classifies the outcome recorded by an entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
	StatusInfo    Status = "info"
)

// Audited action names.
const (
	ActionBatchCreated      = "batch.created"
	ActionBatchQueued       = "batch.queued"
	ActionBatchExecuted     = "batch.executed"
	ActionBatchCompleted    = "batch.completed"
	ActionBatchCancelled    = "batch.cancelled"
	ActionBatchDeleted      = "batch.deleted"
	ActionPaymentCompleted  = "payment.completed"
	ActionPaymentFailed     = "payment.failed"
	ActionPaymentReconciled = "payment.reconciled"
	ActionBatchRecovered    = "batch.recovered"
)

// Target types referenced by entries.
const (
	TargetTypeBatch       = "payout_batch"
	TargetTypeTransaction = "payout_transaction"
)

// AuditLog is an immutable record of a consequential disbursement action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Status     string            `gorm:"type:text;not null"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
