package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	payeedomain "github.com/smallbiznis/disburse/internal/payee/domain"
	"gorm.io/gorm"
)

// Demo affiliates for local development. Alice clears the minimum
// payout threshold, Bob sits below it, and Carol has no payee account
// so provider-side eligibility failures can be exercised.
var demoAffiliates = []struct {
	affiliateID snowflake.ID
	payeeID     string
	kyc         payeedomain.KYCStatus
	amounts     []int64
}{
	{affiliateID: 1001, payeeID: "payee-alice", kyc: payeedomain.KYCStatusApproved, amounts: []int64{2500, 2500, 1500}},
	{affiliateID: 1002, payeeID: "payee-bob", kyc: payeedomain.KYCStatusApproved, amounts: []int64{1200}},
	{affiliateID: 1003, payeeID: "", kyc: payeedomain.KYCStatusPending, amounts: []int64{6000}},
}

// EnsureDemoData seeds affiliates, payee accounts, and approved
// commissions for non-production startup. Idempotent.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&commissiondomain.Commission{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, affiliate := range demoAffiliates {
			if affiliate.payeeID != "" {
				account := payeedomain.PayeeAccount{
					ID:          node.Generate(),
					AffiliateID: affiliate.affiliateID,
					Provider:    "rise",
					PayeeID:     affiliate.payeeID,
					KYCStatus:   affiliate.kyc,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
					return err
				}
			}

			for i, amount := range affiliate.amounts {
				commission := commissiondomain.Commission{
					ID:          node.Generate(),
					AffiliateID: affiliate.affiliateID,
					Amount:      amount,
					Currency:    "USD",
					Status:      commissiondomain.CommissionStatusApproved,
					EarnedAt:    now.AddDate(0, 0, -(i + 1)),
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := tx.WithContext(ctx).Create(&commission).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
