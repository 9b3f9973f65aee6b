package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"github.com/smallbiznis/disburse/internal/clock"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Cfg            config.Config
	Repo           batchdomain.Repository
	CommissionRepo commissiondomain.Repository
	AuditSvc       auditdomain.Service
	Outbox         *events.Outbox
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	currency       string
	repo           batchdomain.Repository
	commissionRepo commissiondomain.Repository
	auditSvc       auditdomain.Service
	outbox         *events.Outbox
}

func NewService(p Params) batchdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("batch.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		currency:       p.Cfg.DefaultCurrency,
		repo:           p.Repo,
		commissionRepo: p.CommissionRepo,
		auditSvc:       p.AuditSvc,
		outbox:         p.Outbox,
	}
}

func (s *Service) CreateBatch(ctx context.Context, req batchdomain.CreateBatchRequest) (*batchdomain.CreateBatchResult, error) {
	if !req.Provider.Valid() {
		return nil, batchdomain.ErrInvalidProvider
	}

	eligible := make([]commissiondomain.Aggregate, 0, len(req.Aggregates))
	currency := ""
	for _, aggregate := range req.Aggregates {
		if len(aggregate.CommissionIDs) == 0 || aggregate.TotalAmount <= 0 {
			continue
		}
		if !aggregate.CanPayout && !req.AllowBelowMinimum {
			continue
		}

		// One batch settles in one currency; a mixed selection is an
		// operator mistake, not something to merge silently.
		legCurrency := aggregate.Currency
		if legCurrency == "" {
			legCurrency = s.currency
		}
		if currency == "" {
			currency = legCurrency
		} else if currency != legCurrency {
			return nil, fmt.Errorf("%w: %s and %s in one selection", batchdomain.ErrMixedCurrencies, currency, legCurrency)
		}

		eligible = append(eligible, aggregate)
	}
	if len(eligible) == 0 {
		return nil, batchdomain.ErrNoPayableAffiliates
	}

	now := s.clock.Now()
	batch := &batchdomain.Batch{
		ID:        s.genID.Generate(),
		Provider:  req.Provider,
		Status:    batchdomain.BatchStatusPending,
		Currency:  currency,
		CreatedBy: req.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	batch.BatchNumber = batchNumber(batch.ID, now)

	transactions := make([]batchdomain.Transaction, 0, len(eligible))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, aggregate := range eligible {
			transaction := batchdomain.Transaction{
				ID:          s.genID.Generate(),
				BatchID:     batch.ID,
				AffiliateID: aggregate.AffiliateID,
				Amount:      aggregate.TotalAmount,
				Currency:    aggregate.Currency,
				Status:      batchdomain.TransactionStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if transaction.Currency == "" {
				transaction.Currency = s.currency
			}

			// The claim is the at-most-once guard: if any commission was
			// grabbed by a competing batch since aggregation, back out.
			claimed, err := s.commissionRepo.ClaimForTransaction(ctx, tx, aggregate.CommissionIDs, transaction.ID, now)
			if err != nil {
				return err
			}
			if claimed != int64(len(aggregate.CommissionIDs)) {
				return fmt.Errorf("%w: commissions for affiliate %s already claimed", batchdomain.ErrConcurrencyConflict, aggregate.AffiliateID)
			}

			transactions = append(transactions, transaction)
			batch.TotalAmount += transaction.Amount
			batch.PaymentCount++
		}

		if err := s.repo.InsertTransactions(ctx, tx, transactions); err != nil {
			return err
		}
		if err := s.repo.InsertBatch(ctx, tx, batch); err != nil {
			return err
		}

		if err := s.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeAdmin,
			ActorID:    req.ActorID,
			Action:     auditdomain.ActionBatchCreated,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   batch.ID.String(),
			Status:     auditdomain.StatusSuccess,
			Metadata: map[string]any{
				"batch_number":  batch.BatchNumber,
				"provider":      string(batch.Provider),
				"total_amount":  batch.TotalAmount,
				"payment_count": batch.PaymentCount,
			},
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventBatchCreated,
			Payload: events.BatchPayload{
				BatchID:      batch.ID.String(),
				BatchNumber:  batch.BatchNumber,
				Provider:     string(batch.Provider),
				TotalAmount:  batch.TotalAmount,
				PaymentCount: batch.PaymentCount,
			}.ToMap(),
			DedupeKey: events.EventBatchCreated + ":" + batch.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch created",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_number", batch.BatchNumber),
		zap.Int("payment_count", batch.PaymentCount),
		zap.Int64("total_amount", batch.TotalAmount),
	)
	return &batchdomain.CreateBatchResult{Batch: batch, TransactionCount: len(transactions)}, nil
}

func (s *Service) GetAllBatches(ctx context.Context, filter batchdomain.ListFilter, page batchdomain.Pagination) ([]batchdomain.Batch, error) {
	return s.repo.ListBatches(ctx, s.db, filter, page)
}

func (s *Service) GetBatchByID(ctx context.Context, id snowflake.ID) (*batchdomain.Batch, error) {
	return s.repo.FindBatchByID(ctx, s.db, id)
}

func (s *Service) GetTransactions(ctx context.Context, batchID snowflake.ID) ([]batchdomain.Transaction, error) {
	if _, err := s.repo.FindBatchByID(ctx, s.db, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsByBatch(ctx, s.db, batchID)
}

func (s *Service) GetBatchStats(ctx context.Context) (*batchdomain.Stats, error) {
	return s.repo.Stats(ctx, s.db)
}

func (s *Service) QueueBatch(ctx context.Context, id snowflake.ID, actorID string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionBatch(ctx, tx, id,
			[]batchdomain.BatchStatus{batchdomain.BatchStatusPending},
			batchdomain.BatchStatusQueued, now)
		if err != nil {
			return err
		}
		if !moved {
			return s.stateError(ctx, tx, id)
		}
		if err := s.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeAdmin,
			ActorID:    actorID,
			Action:     auditdomain.ActionBatchQueued,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   id.String(),
			Status:     auditdomain.StatusSuccess,
		}); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventBatchQueued,
			Payload:   map[string]any{"batch_id": id.String()},
			DedupeKey: events.EventBatchQueued + ":" + id.String(),
		})
	})
}

func (s *Service) CancelBatch(ctx context.Context, id snowflake.ID, actorID string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionBatch(ctx, tx, id,
			[]batchdomain.BatchStatus{batchdomain.BatchStatusPending, batchdomain.BatchStatusQueued},
			batchdomain.BatchStatusCancelled, now)
		if err != nil {
			return err
		}
		if !moved {
			return s.stateError(ctx, tx, id)
		}

		transactions, err := s.repo.ListTransactionsByBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		transactionIDs := make([]snowflake.ID, 0, len(transactions))
		for _, transaction := range transactions {
			transactionIDs = append(transactionIDs, transaction.ID)
		}

		if err := s.commissionRepo.ReleaseByTransactionIDs(ctx, tx, transactionIDs, now); err != nil {
			return err
		}
		if err := s.repo.CancelPendingTransactions(ctx, tx, id, now); err != nil {
			return err
		}
		// All legs are cancelled, so the batch totals drop to zero to
		// keep total == sum(non-cancelled legs).
		if err := s.repo.ZeroBatchTotals(ctx, tx, id, now); err != nil {
			return err
		}

		if err := s.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeAdmin,
			ActorID:    actorID,
			Action:     auditdomain.ActionBatchCancelled,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   id.String(),
			Status:     auditdomain.StatusSuccess,
			Metadata:   map[string]any{"released_transactions": len(transactionIDs)},
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventBatchCancelled,
			Payload:   map[string]any{"batch_id": id.String()},
			DedupeKey: events.EventBatchCancelled + ":" + id.String(),
		})
	})
}

func (s *Service) DeleteBatch(ctx context.Context, id snowflake.ID, actorID string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindBatchByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status != batchdomain.BatchStatusPending {
			return fmt.Errorf("%w: cannot delete batch in status %s", batchdomain.ErrInvalidBatchState, batch.Status)
		}

		transactions, err := s.repo.ListTransactionsByBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		transactionIDs := make([]snowflake.ID, 0, len(transactions))
		for _, transaction := range transactions {
			transactionIDs = append(transactionIDs, transaction.ID)
		}

		if err := s.commissionRepo.ReleaseByTransactionIDs(ctx, tx, transactionIDs, now); err != nil {
			return err
		}
		if err := s.repo.DeleteTransactionsByBatch(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.DeleteBatch(ctx, tx, id); err != nil {
			return err
		}

		return s.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeAdmin,
			ActorID:    actorID,
			Action:     auditdomain.ActionBatchDeleted,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   id.String(),
			Status:     auditdomain.StatusSuccess,
			Metadata: map[string]any{
				"batch_number":          batch.BatchNumber,
				"released_transactions": len(transactionIDs),
			},
		})
	})
}

// stateError distinguishes "no such batch" from "illegal transition"
// after a compare-and-set matched zero rows. It reads through the open
// transaction: the callers hold the connection, so a fresh session here
// would block on sqlite and read uncommitted-invisible state elsewhere.
func (s *Service) stateError(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	batch, err := s.repo.FindBatchByID(ctx, tx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: batch %s is %s", batchdomain.ErrInvalidBatchState, batch.BatchNumber, batch.Status)
}

func batchNumber(id snowflake.ID, now time.Time) string {
	raw := id.String()
	suffix := raw
	if len(raw) > 6 {
		suffix = raw[len(raw)-6:]
	}
	return "PB-" + now.Format("20060102") + "-" + suffix
}
