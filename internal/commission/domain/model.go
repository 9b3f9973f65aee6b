package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CommissionStatus is the lifecycle of a single earned reward.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// Commission is one approved referral reward owed to an affiliate.
// TransactionID is the at-most-once claim: once set, the commission
// belongs to exactly one payout transaction for the rest of its life.
type Commission struct {
	ID            snowflake.ID     `gorm:"primaryKey"`
	AffiliateID   snowflake.ID     `gorm:"not null;index:idx_commissions_affiliate_status,priority:1"`
	Amount        int64            `gorm:"not null"`
	Currency      string           `gorm:"type:text;not null"`
	Status        CommissionStatus `gorm:"type:text;not null;index:idx_commissions_affiliate_status,priority:2"`
	TransactionID *snowflake.ID    `gorm:"index"`
	EarnedAt      time.Time        `gorm:"not null"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (Commission) TableName() string { return "commissions" }

// Aggregate is the computed payable view for one affiliate. It is
// recomputed on every query and never persisted.
type Aggregate struct {
	AffiliateID    snowflake.ID   `json:"affiliate_id"`
	TotalAmount    int64          `json:"total_amount"`
	Currency       string         `json:"currency"`
	CommissionIDs  []snowflake.ID `json:"commission_ids"`
	Count          int            `json:"count"`
	OldestEarnedAt time.Time      `json:"oldest_earned_at"`
	CanPayout      bool           `json:"can_payout"`
	Reason         string         `json:"reason,omitempty"`
}
