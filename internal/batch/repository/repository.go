package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() batchdomain.Repository {
	return &repository{}
}

func (r *repository) InsertBatch(ctx context.Context, tx *gorm.DB, batch *batchdomain.Batch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *repository) InsertTransactions(ctx context.Context, tx *gorm.DB, transactions []batchdomain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&transactions).Error
}

func (r *repository) FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*batchdomain.Batch, error) {
	var batch batchdomain.Batch
	err := db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, batchdomain.ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListBatches(ctx context.Context, db *gorm.DB, filter batchdomain.ListFilter, page batchdomain.Pagination) ([]batchdomain.Batch, error) {
	query := db.WithContext(ctx).Model(&batchdomain.Batch{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}

	limit := page.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	var batches []batchdomain.Batch
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) ListTransactionsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]batchdomain.Transaction, error) {
	var transactions []batchdomain.Transaction
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repository) Stats(ctx context.Context, db *gorm.DB) (*batchdomain.Stats, error) {
	var rows []struct {
		Status batchdomain.BatchStatus
		Count  int64
		Total  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(1) AS count, COALESCE(SUM(total_amount), 0) AS total
		 FROM payout_batches
		 GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &batchdomain.Stats{CountsByStatus: make(map[batchdomain.BatchStatus]int64, len(rows))}
	for _, row := range rows {
		stats.CountsByStatus[row.Status] = row.Count
		stats.TotalAmount += row.Total
	}

	var paid int64
	err = db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payout_transactions
		 WHERE status = ?`,
		batchdomain.TransactionStatusCompleted,
	).Scan(&paid).Error
	if err != nil {
		return nil, err
	}
	stats.PaidAmount = paid
	return stats, nil
}

func (r *repository) TransitionBatch(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []batchdomain.BatchStatus, to batchdomain.BatchStatus, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE payout_batches
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetBatchExecuted(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_batches
		 SET executed_at = COALESCE(executed_at, ?), updated_at = ?
		 WHERE id = ?`,
		now,
		now,
		id,
	).Error
}

func (r *repository) SetBatchCompleted(ctx context.Context, tx *gorm.DB, id snowflake.ID, status batchdomain.BatchStatus, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_batches
		 SET status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		now,
		now,
		id,
		batchdomain.BatchStatusProcessing,
	).Error
}

func (r *repository) ZeroBatchTotals(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_batches
		 SET total_amount = 0, payment_count = 0, updated_at = ?
		 WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *repository) TransitionTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []batchdomain.TransactionStatus, to batchdomain.TransactionStatus, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE payout_transactions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CompleteTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, providerTxID string, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_transactions
		 SET status = ?, provider_tx_id = ?, completed_at = ?, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		batchdomain.TransactionStatusCompleted,
		providerTxID,
		now,
		now,
		id,
		batchdomain.TransactionStatusProcessing,
	).Error
}

func (r *repository) FailTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, message string, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_transactions
		 SET status = ?, error_message = ?, failed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		batchdomain.TransactionStatusFailed,
		message,
		now,
		now,
		id,
		batchdomain.TransactionStatusProcessing,
	).Error
}

func (r *repository) CancelPendingTransactions(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payout_transactions
		 SET status = ?, updated_at = ?
		 WHERE batch_id = ? AND status = ?`,
		batchdomain.TransactionStatusCancelled,
		now,
		batchID,
		batchdomain.TransactionStatusPending,
	).Error
}

func (r *repository) DeleteBatch(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM payout_batches WHERE id = ?`, id).Error
}

func (r *repository) DeleteTransactionsByBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM payout_transactions WHERE batch_id = ?`, batchID).Error
}

func (r *repository) CountProcessingForAffiliates(ctx context.Context, db *gorm.DB, affiliateIDs []snowflake.ID, excludeBatchID snowflake.ID) (int64, error) {
	if len(affiliateIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payout_transactions
		 WHERE affiliate_id IN ? AND status = ? AND batch_id != ?`,
		affiliateIDs,
		batchdomain.TransactionStatusProcessing,
		excludeBatchID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
