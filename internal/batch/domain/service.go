package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

// CreateBatchRequest groups a selection of aggregates into one batch.
// AllowBelowMinimum is set by callers that explicitly targeted an
// affiliate (quick-pay); otherwise sub-threshold aggregates are
// skipped.
type CreateBatchRequest struct {
	Aggregates        []commissiondomain.Aggregate
	Provider          providerdomain.Provider
	ActorID           string
	AllowBelowMinimum bool
}

type CreateBatchResult struct {
	Batch            *Batch `json:"batch"`
	TransactionCount int    `json:"transaction_count"`
}

type ListFilter struct {
	Status   BatchStatus
	Provider providerdomain.Provider
}

type Pagination struct {
	Limit  int
	Offset int
}

// Stats summarizes batches for the operator dashboard.
type Stats struct {
	CountsByStatus map[BatchStatus]int64 `json:"counts_by_status"`
	TotalAmount    int64                 `json:"total_amount"`
	PaidAmount     int64                 `json:"paid_amount"`
}

// Service is the batch lifecycle manager. Execution belongs to the
// orchestrator; everything up to and including queueing lives here.
type Service interface {
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, error)
	GetAllBatches(ctx context.Context, filter ListFilter, page Pagination) ([]Batch, error)
	GetBatchByID(ctx context.Context, id snowflake.ID) (*Batch, error)
	GetTransactions(ctx context.Context, batchID snowflake.ID) ([]Transaction, error)
	GetBatchStats(ctx context.Context) (*Stats, error)
	QueueBatch(ctx context.Context, id snowflake.ID, actorID string) error
	CancelBatch(ctx context.Context, id snowflake.ID, actorID string) error
	DeleteBatch(ctx context.Context, id snowflake.ID, actorID string) error
}

var (
	ErrNoPayableAffiliates = errors.New("no_payable_affiliates")
	ErrInvalidBatchState   = errors.New("invalid_batch_state")
	ErrBatchNotFound       = errors.New("batch_not_found")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrMixedCurrencies     = errors.New("mixed_currencies")
)
