package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns the commissions table. Claim and Release are the
// mutually exclusive handoff between aggregation and batching.
type Repository interface {
	// ListUnclaimedApproved returns approved commissions with no linked
	// transaction, optionally restricted to one affiliate, ordered by
	// earned time.
	ListUnclaimedApproved(ctx context.Context, db *gorm.DB, affiliateID *snowflake.ID) ([]Commission, error)

	// ClaimForTransaction links the given commissions to a transaction.
	// It succeeds only if every id is still approved and unclaimed;
	// otherwise it reports the number of rows it could claim so the
	// caller can roll back.
	ClaimForTransaction(ctx context.Context, tx *gorm.DB, ids []snowflake.ID, transactionID snowflake.ID, now time.Time) (int64, error)

	// ReleaseByTransactionIDs unlinks commissions claimed by the given
	// transactions, returning them to the payable pool.
	ReleaseByTransactionIDs(ctx context.Context, tx *gorm.DB, transactionIDs []snowflake.ID, now time.Time) error

	// MarkPaidByTransactionID flips all commissions settled by one
	// transaction to paid.
	MarkPaidByTransactionID(ctx context.Context, tx *gorm.DB, transactionID snowflake.ID, now time.Time) error
}
