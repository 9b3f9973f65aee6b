package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() commissiondomain.Repository {
	return &repository{}
}

func (r *repository) ListUnclaimedApproved(ctx context.Context, db *gorm.DB, affiliateID *snowflake.ID) ([]commissiondomain.Commission, error) {
	query := db.WithContext(ctx).
		Where("status = ? AND transaction_id IS NULL", commissiondomain.CommissionStatusApproved)
	if affiliateID != nil {
		query = query.Where("affiliate_id = ?", *affiliateID)
	}

	var commissions []commissiondomain.Commission
	err := query.Order("earned_at ASC, id ASC").Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repository) ClaimForTransaction(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, transactionID snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE commissions
		 SET transaction_id = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND transaction_id IS NULL`,
		transactionID,
		now,
		ids,
		commissiondomain.CommissionStatusApproved,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ReleaseByTransactionIDs(ctx context.Context, tx *gorm.DB, transactionIDs []snowflake.ID, now time.Time) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE commissions
		 SET transaction_id = NULL, updated_at = ?
		 WHERE transaction_id IN ? AND status = ?`,
		now,
		transactionIDs,
		commissiondomain.CommissionStatusApproved,
	).Error
}

func (r *repository) MarkPaidByTransactionID(ctx context.Context, tx *gorm.DB, transactionID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE commissions
		 SET status = ?, updated_at = ?
		 WHERE transaction_id = ? AND status = ?`,
		commissiondomain.CommissionStatusPaid,
		now,
		transactionID,
		commissiondomain.CommissionStatusApproved,
	).Error
}
