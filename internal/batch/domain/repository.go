package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns the payout_batches and payout_transactions tables.
// Status transitions are compare-and-set updates: they name the states
// they are legal from and report whether a row actually moved, which
// is what keeps double execution out without advisory locks.
type Repository interface {
	InsertBatch(ctx context.Context, tx *gorm.DB, batch *Batch) error
	InsertTransactions(ctx context.Context, tx *gorm.DB, transactions []Transaction) error

	FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	ListBatches(ctx context.Context, db *gorm.DB, filter ListFilter, page Pagination) ([]Batch, error)
	ListTransactionsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]Transaction, error)
	Stats(ctx context.Context, db *gorm.DB) (*Stats, error)

	// TransitionBatch moves a batch from one of `from` to `to`,
	// returning false if the batch was not in any legal source state.
	TransitionBatch(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []BatchStatus, to BatchStatus, now time.Time) (bool, error)
	SetBatchExecuted(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error
	SetBatchCompleted(ctx context.Context, tx *gorm.DB, id snowflake.ID, status BatchStatus, now time.Time) error
	ZeroBatchTotals(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error

	TransitionTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, from []TransactionStatus, to TransactionStatus, now time.Time) (bool, error)
	CompleteTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, providerTxID string, now time.Time) error
	FailTransaction(ctx context.Context, tx *gorm.DB, id snowflake.ID, message string, now time.Time) error
	CancelPendingTransactions(ctx context.Context, tx *gorm.DB, batchID snowflake.ID, now time.Time) error

	DeleteBatch(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	DeleteTransactionsByBatch(ctx context.Context, tx *gorm.DB, batchID snowflake.ID) error

	// CountProcessingForAffiliates counts transactions currently
	// processing for any of the affiliates outside the given batch.
	CountProcessingForAffiliates(ctx context.Context, db *gorm.DB, affiliateIDs []snowflake.ID, excludeBatchID snowflake.ID) (int64, error)
}
