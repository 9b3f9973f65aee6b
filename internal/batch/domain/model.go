package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

// BatchStatus is the batch state machine:
// pending -> queued -> processing -> completed | failed, with
// cancelled reachable from pending or queued only.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// Terminal reports whether no further transitions are legal.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// TransactionStatus is the per-payment state machine:
// pending -> processing -> completed | failed, cancelled only while the
// batch has not started executing.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// Batch is one unit of disbursement work.
type Batch struct {
	ID           snowflake.ID            `gorm:"primaryKey" json:"id"`
	BatchNumber  string                  `gorm:"type:text;not null;uniqueIndex" json:"batch_number"`
	Provider     providerdomain.Provider `gorm:"type:text;not null" json:"provider"`
	Status       BatchStatus             `gorm:"type:text;not null;index" json:"status"`
	TotalAmount  int64                   `gorm:"not null" json:"total_amount"`
	Currency     string                  `gorm:"type:text;not null" json:"currency"`
	PaymentCount int                     `gorm:"not null" json:"payment_count"`
	CreatedBy    string                  `gorm:"type:text;not null" json:"created_by"`
	CreatedAt    time.Time               `gorm:"not null" json:"created_at"`
	ExecutedAt   *time.Time              `json:"executed_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	UpdatedAt    time.Time               `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "payout_batches" }

// Transaction is one payment leg within a batch, one per affiliate.
// Once completed, amount and provider_tx_id are never touched again.
type Transaction struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	BatchID      snowflake.ID      `gorm:"not null;index" json:"batch_id"`
	AffiliateID  snowflake.ID      `gorm:"not null;index:idx_payout_transactions_affiliate_status,priority:1" json:"affiliate_id"`
	Amount       int64             `gorm:"not null" json:"amount"`
	Currency     string            `gorm:"type:text;not null" json:"currency"`
	Status       TransactionStatus `gorm:"type:text;not null;index:idx_payout_transactions_affiliate_status,priority:2" json:"status"`
	ProviderTxID *string           `gorm:"column:provider_tx_id;type:text" json:"provider_tx_id,omitempty"`
	ErrorMessage *string           `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	FailedAt     *time.Time        `json:"failed_at,omitempty"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "payout_transactions" }

// IdempotencyKey derives the provider idempotency key from the
// transaction id. Stable across retries and crash recovery.
func (t Transaction) IdempotencyKey() string {
	return "ptx-" + t.ID.String()
}
