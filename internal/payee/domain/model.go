package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// KYCStatus is the onboarding state of a payee account. Owned by the
// external onboarding flow; read-only here.
type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// PayeeAccount maps an affiliate to its external payment-network payee.
type PayeeAccount struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AffiliateID snowflake.ID `gorm:"not null;uniqueIndex"`
	Provider    string       `gorm:"type:text;not null"`
	PayeeID     string       `gorm:"type:text;not null"`
	KYCStatus   KYCStatus    `gorm:"column:kyc_status;type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null"`
	UpdatedAt   time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (PayeeAccount) TableName() string { return "affiliate_payee_accounts" }

// Eligible reports whether the account can receive funds.
func (p PayeeAccount) Eligible() bool {
	return p.KYCStatus == KYCStatusApproved
}

type Repository interface {
	FindByAffiliateID(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (*PayeeAccount, error)
}

var ErrPayeeNotFound = errors.New("payee_not_found")
