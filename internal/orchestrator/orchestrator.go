package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"github.com/smallbiznis/disburse/internal/clock"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/events"
	"github.com/smallbiznis/disburse/internal/observability/metrics"
	"github.com/smallbiznis/disburse/internal/observability/tracing"
	payeedomain "github.com/smallbiznis/disburse/internal/payee/domain"
	"github.com/smallbiznis/disburse/internal/provider"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errTransactionNotClaimed means the pending -> processing compare-and-set
// matched zero rows: the leg changed state under us and its row already
// reflects the truth.
var errTransactionNotClaimed = errors.New("transaction_not_claimable")

// ExecutionError identifies one payout that needs manual attention.
type ExecutionError struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	AffiliateID   snowflake.ID `json:"affiliate_id"`
	Message       string       `json:"message"`
}

// BatchExecutionResult is the operator-facing summary of one run.
type BatchExecutionResult struct {
	Success      bool             `json:"success"`
	BatchID      snowflake.ID     `json:"batch_id"`
	BatchNumber  string           `json:"batch_number"`
	TotalAmount  int64            `json:"total_amount"`
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Errors       []ExecutionError `json:"errors,omitempty"`

	// unrecorded counts legs whose transfer went through but whose local
	// commit failed. While it is non-zero the batch must not be sealed.
	unrecorded int
}

// Service drives batches through execution. One batch runs as a single
// sequential task; there is no intra-batch parallelism.
type Service interface {
	// ExecuteBatch runs a pending or queued batch to completion.
	ExecuteBatch(ctx context.Context, batchID snowflake.ID, actorID string) (*BatchExecutionResult, error)
	// ResumeBatch re-runs a batch left processing by a crash, skipping
	// terminal transactions and reconciling in-flight ones.
	ResumeBatch(ctx context.Context, batchID snowflake.ID) (*BatchExecutionResult, error)
	// QuickPay aggregates, batches, and executes a single affiliate in
	// one synchronous call.
	QuickPay(ctx context.Context, affiliateID snowflake.ID, providerName providerdomain.Provider, actorID string) (*BatchExecutionResult, error)
}

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Cfg            config.Config
	Registry       *provider.Registry
	BatchRepo      batchdomain.Repository
	BatchSvc       batchdomain.Service
	CommissionRepo commissiondomain.Repository
	PayeeRepo      payeedomain.Repository
	Aggregator     commissiondomain.Aggregator
	AuditSvc       auditdomain.Service
	Outbox         *events.Outbox
	Metrics        *metrics.PayoutMetrics `optional:"true"`
}

type Orchestrator struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	retry          config.RetryConfig
	registry       *provider.Registry
	batchRepo      batchdomain.Repository
	batchSvc       batchdomain.Service
	commissionRepo commissiondomain.Repository
	payeeRepo      payeedomain.Repository
	aggregator     commissiondomain.Aggregator
	auditSvc       auditdomain.Service
	outbox         *events.Outbox
	metrics        *metrics.PayoutMetrics
}

func NewOrchestrator(p Params) Service {
	return &Orchestrator{
		db:             p.DB,
		log:            p.Log.Named("orchestrator"),
		clock:          p.Clock,
		retry:          p.Cfg.Retry,
		registry:       p.Registry,
		batchRepo:      p.BatchRepo,
		batchSvc:       p.BatchSvc,
		commissionRepo: p.CommissionRepo,
		payeeRepo:      p.PayeeRepo,
		aggregator:     p.Aggregator,
		auditSvc:       p.AuditSvc,
		outbox:         p.Outbox,
		metrics:        p.Metrics,
	}
}

func (o *Orchestrator) ExecuteBatch(ctx context.Context, batchID snowflake.ID, actorID string) (*BatchExecutionResult, error) {
	return o.run(ctx, batchID, actorID, false)
}

func (o *Orchestrator) ResumeBatch(ctx context.Context, batchID snowflake.ID) (*BatchExecutionResult, error) {
	return o.run(ctx, batchID, "", true)
}

func (o *Orchestrator) run(ctx context.Context, batchID snowflake.ID, actorID string, resume bool) (*BatchExecutionResult, error) {
	ctx, span := tracing.Start(ctx, "orchestrator.ExecuteBatch",
		attribute.String("batch_id", batchID.String()),
		attribute.Bool("resume", resume),
	)
	defer span.End()

	batch, err := o.batchRepo.FindBatchByID(ctx, o.db, batchID)
	if err != nil {
		return nil, err
	}

	transactions, err := o.batchRepo.ListTransactionsByBatch(ctx, o.db, batchID)
	if err != nil {
		return nil, err
	}

	// Cross-batch mutual exclusion: an affiliate with an in-flight leg
	// in another batch blocks this one entirely.
	affiliateIDs := make([]snowflake.ID, 0, len(transactions))
	for _, transaction := range transactions {
		affiliateIDs = append(affiliateIDs, transaction.AffiliateID)
	}
	inFlight, err := o.batchRepo.CountProcessingForAffiliates(ctx, o.db, affiliateIDs, batchID)
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, fmt.Errorf("%w: affiliate has an in-flight transaction in another batch", batchdomain.ErrConcurrencyConflict)
	}

	if err := o.claimBatch(ctx, batch, actorID, resume); err != nil {
		return nil, err
	}

	paymentProvider, err := o.registry.Get(batch.Provider)
	if err != nil {
		return nil, err
	}

	start := o.clock.Now()
	result := &BatchExecutionResult{
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		TotalAmount: batch.TotalAmount,
	}

	for _, transaction := range transactions {
		switch transaction.Status {
		case batchdomain.TransactionStatusCompleted:
			result.SuccessCount++
			continue
		case batchdomain.TransactionStatusFailed:
			result.FailedCount++
			result.Errors = append(result.Errors, ExecutionError{
				TransactionID: transaction.ID,
				AffiliateID:   transaction.AffiliateID,
				Message:       deref(transaction.ErrorMessage),
			})
			continue
		case batchdomain.TransactionStatusCancelled:
			continue
		case batchdomain.TransactionStatusProcessing:
			// Unknown outcome from a previous crash: reconcile against
			// the provider by idempotency key, never resubmit blindly.
			o.reconcileTransaction(ctx, paymentProvider, batch, transaction, result)
			continue
		}

		o.executeTransaction(ctx, paymentProvider, batch, transaction, result)
	}

	if result.unrecorded > 0 {
		// Money moved but the database does not say so. Leave the batch
		// in processing so the recovery scan picks it up and reconciles
		// the leg by idempotency key; sealing a terminal status here
		// would strand the payment outside every automated path.
		o.log.Warn("batch left processing, settled legs await reconciliation",
			zap.String("batch_number", batch.BatchNumber),
			zap.Int("unrecorded_count", result.unrecorded),
		)
		result.Success = false
		return result, nil
	}

	status := batchdomain.BatchStatusCompleted
	if result.FailedCount > 0 {
		status = batchdomain.BatchStatusFailed
	}
	if err := o.finishBatch(ctx, batch, status, result); err != nil {
		return nil, err
	}
	result.Success = result.FailedCount == 0

	if o.metrics != nil {
		o.metrics.BatchesExecuted.WithLabelValues(string(status)).Inc()
		o.metrics.BatchDuration.Observe(o.clock.Now().Sub(start).Seconds())
	}

	o.log.Info("batch execution finished",
		zap.String("batch_number", batch.BatchNumber),
		zap.String("status", string(status)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failed_count", result.FailedCount),
	)
	return result, nil
}

// claimBatch moves the batch into processing exactly once. A zero-row
// compare-and-set means another runner owns it or it is terminal.
func (o *Orchestrator) claimBatch(ctx context.Context, batch *batchdomain.Batch, actorID string, resume bool) error {
	now := o.clock.Now()
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if resume {
			if batch.Status != batchdomain.BatchStatusProcessing {
				return fmt.Errorf("%w: batch %s is %s, nothing to resume", batchdomain.ErrInvalidBatchState, batch.BatchNumber, batch.Status)
			}
			return o.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     auditdomain.ActionBatchRecovered,
				TargetType: auditdomain.TargetTypeBatch,
				TargetID:   batch.ID.String(),
				Status:     auditdomain.StatusWarning,
				Metadata:   map[string]any{"batch_number": batch.BatchNumber},
			})
		}

		moved, err := o.batchRepo.TransitionBatch(ctx, tx, batch.ID,
			[]batchdomain.BatchStatus{batchdomain.BatchStatusPending, batchdomain.BatchStatusQueued},
			batchdomain.BatchStatusProcessing, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: batch %s is %s", batchdomain.ErrInvalidBatchState, batch.BatchNumber, batch.Status)
		}
		if err := o.batchRepo.SetBatchExecuted(ctx, tx, batch.ID, now); err != nil {
			return err
		}

		actorType := auditdomain.ActorTypeAdmin
		if actorID == "" {
			actorType = auditdomain.ActorTypeSystem
		}
		return o.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  actorType,
			ActorID:    actorID,
			Action:     auditdomain.ActionBatchExecuted,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   batch.ID.String(),
			Status:     auditdomain.StatusInfo,
			Metadata: map[string]any{
				"batch_number":  batch.BatchNumber,
				"provider":      string(batch.Provider),
				"payment_count": batch.PaymentCount,
			},
		})
	})
}

// executeTransaction drives one pending leg to a terminal state. A
// failure here never propagates: it is recorded and the loop moves on.
func (o *Orchestrator) executeTransaction(
	ctx context.Context,
	paymentProvider providerdomain.PaymentProvider,
	batch *batchdomain.Batch,
	transaction batchdomain.Transaction,
	result *BatchExecutionResult,
) {
	now := o.clock.Now()
	moved, err := o.batchRepo.TransitionTransaction(ctx, o.db, transaction.ID,
		[]batchdomain.TransactionStatus{batchdomain.TransactionStatusPending},
		batchdomain.TransactionStatusProcessing, now)
	if err != nil {
		o.recordFailure(ctx, batch, transaction, fmt.Errorf("could not claim transaction: %w", err), result)
		return
	}
	if !moved {
		// Only the tally notes it; writing a failure over a row another
		// runner owns would fight that runner's outcome.
		result.FailedCount++
		result.Errors = append(result.Errors, ExecutionError{
			TransactionID: transaction.ID,
			AffiliateID:   transaction.AffiliateID,
			Message:       errTransactionNotClaimed.Error(),
		})
		return
	}

	request := providerdomain.PaymentRequest{
		AffiliateID:    transaction.AffiliateID,
		PayeeID:        o.resolvePayeeID(ctx, transaction.AffiliateID),
		Amount:         transaction.Amount,
		Currency:       transaction.Currency,
		IdempotencyKey: transaction.IdempotencyKey(),
	}

	payment, err := o.callWithRetry(ctx, paymentProvider, request)
	if err != nil {
		o.recordFailure(ctx, batch, transaction, err, result)
		return
	}

	o.recordSuccess(ctx, batch, transaction, payment.ProviderTxID, auditdomain.ActionPaymentCompleted, result)
}

// reconcileTransaction resolves a leg whose previous attempt has an
// unknown outcome.
func (o *Orchestrator) reconcileTransaction(
	ctx context.Context,
	paymentProvider providerdomain.PaymentProvider,
	batch *batchdomain.Batch,
	transaction batchdomain.Transaction,
	result *BatchExecutionResult,
) {
	lookup, err := paymentProvider.LookupPayment(ctx, transaction.IdempotencyKey())
	if err != nil {
		o.recordFailure(ctx, batch, transaction,
			fmt.Errorf("reconciliation failed, manual review required: %w", err), result)
		return
	}

	if lookup.Found {
		if lookup.Completed {
			o.recordSuccess(ctx, batch, transaction, lookup.ProviderTxID, auditdomain.ActionPaymentReconciled, result)
			return
		}
		o.recordFailure(ctx, batch, transaction,
			fmt.Errorf("provider reports terminal status %q", lookup.Status), result)
		return
	}

	// The provider never saw the key, so the crash happened before
	// submission; safe to execute now.
	request := providerdomain.PaymentRequest{
		AffiliateID:    transaction.AffiliateID,
		PayeeID:        o.resolvePayeeID(ctx, transaction.AffiliateID),
		Amount:         transaction.Amount,
		Currency:       transaction.Currency,
		IdempotencyKey: transaction.IdempotencyKey(),
	}
	payment, err := o.callWithRetry(ctx, paymentProvider, request)
	if err != nil {
		o.recordFailure(ctx, batch, transaction, err, result)
		return
	}
	o.recordSuccess(ctx, batch, transaction, payment.ProviderTxID, auditdomain.ActionPaymentCompleted, result)
}

// callWithRetry retries transient provider failures with capped
// exponential backoff; permanent failures return immediately.
func (o *Orchestrator) callWithRetry(ctx context.Context, paymentProvider providerdomain.PaymentProvider, request providerdomain.PaymentRequest) (*providerdomain.PaymentResult, error) {
	maxAttempts := o.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := o.retry.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		payment, err := paymentProvider.ExecutePayment(ctx, request)
		if err == nil {
			return payment, nil
		}
		lastErr = err

		if !providerdomain.IsTransient(err) || attempt == maxAttempts {
			return nil, err
		}

		if o.metrics != nil {
			o.metrics.PaymentRetries.Inc()
		}
		o.log.Warn("transient provider failure, retrying",
			zap.String("idempotency_key", request.IdempotencyKey),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := o.clock.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: cancelled during backoff: %v", providerdomain.ErrTransient, err)
		}
		delay = time.Duration(float64(delay) * o.retry.BackoffMultiplier)
		if o.retry.MaxDelay > 0 && delay > o.retry.MaxDelay {
			delay = o.retry.MaxDelay
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) recordSuccess(
	ctx context.Context,
	batch *batchdomain.Batch,
	transaction batchdomain.Transaction,
	providerTxID string,
	action string,
	result *BatchExecutionResult,
) {
	now := o.clock.Now()
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.batchRepo.CompleteTransaction(ctx, tx, transaction.ID, providerTxID, now); err != nil {
			return err
		}
		if err := o.commissionRepo.MarkPaidByTransactionID(ctx, tx, transaction.ID, now); err != nil {
			return err
		}
		if err := o.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     action,
			TargetType: auditdomain.TargetTypeTransaction,
			TargetID:   transaction.ID.String(),
			Status:     auditdomain.StatusSuccess,
			Metadata: map[string]any{
				"batch_id":       batch.ID.String(),
				"affiliate_id":   transaction.AffiliateID.String(),
				"amount":         transaction.Amount,
				"provider_tx_id": providerTxID,
			},
		}); err != nil {
			return err
		}
		return o.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventPaymentSettled,
			Payload: events.PaymentPayload{
				TransactionID: transaction.ID.String(),
				BatchID:       batch.ID.String(),
				AffiliateID:   transaction.AffiliateID.String(),
				Amount:        transaction.Amount,
				ProviderTxID:  providerTxID,
			}.ToMap(),
			DedupeKey: events.EventPaymentSettled + ":" + transaction.ID.String(),
		})
	})
	if err != nil {
		// The transfer went through but local state did not commit. The
		// leg stays processing and unrecorded keeps the batch open, so
		// the recovery pass reconciles it by idempotency key.
		o.log.Error("failed to record completed payment",
			zap.String("transaction_id", transaction.ID.String()),
			zap.Error(err),
		)
		result.unrecorded++
		result.Errors = append(result.Errors, ExecutionError{
			TransactionID: transaction.ID,
			AffiliateID:   transaction.AffiliateID,
			Message:       "payment sent but not recorded: " + err.Error(),
		})
		return
	}

	result.SuccessCount++
	if o.metrics != nil {
		o.metrics.PaymentsCompleted.WithLabelValues(string(batch.Provider)).Inc()
	}
}

func (o *Orchestrator) recordFailure(
	ctx context.Context,
	batch *batchdomain.Batch,
	transaction batchdomain.Transaction,
	cause error,
	result *BatchExecutionResult,
) {
	now := o.clock.Now()
	message := cause.Error()
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.batchRepo.FailTransaction(ctx, tx, transaction.ID, message, now); err != nil {
			return err
		}
		// Linked commissions stay claimed: excluded from aggregation,
		// waiting on manual reconciliation.
		if err := o.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     auditdomain.ActionPaymentFailed,
			TargetType: auditdomain.TargetTypeTransaction,
			TargetID:   transaction.ID.String(),
			Status:     auditdomain.StatusFailure,
			Metadata: map[string]any{
				"batch_id":     batch.ID.String(),
				"affiliate_id": transaction.AffiliateID.String(),
				"amount":       transaction.Amount,
				"error":        message,
				"permanent":    !providerdomain.IsTransient(cause),
			},
		}); err != nil {
			return err
		}
		return o.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventPaymentFailed,
			Payload: events.PaymentPayload{
				TransactionID: transaction.ID.String(),
				BatchID:       batch.ID.String(),
				AffiliateID:   transaction.AffiliateID.String(),
				Amount:        transaction.Amount,
				Error:         message,
			}.ToMap(),
			DedupeKey: events.EventPaymentFailed + ":" + transaction.ID.String(),
		})
	})
	if err != nil {
		o.log.Error("failed to record payment failure",
			zap.String("transaction_id", transaction.ID.String()),
			zap.Error(err),
		)
	}

	result.FailedCount++
	result.Errors = append(result.Errors, ExecutionError{
		TransactionID: transaction.ID,
		AffiliateID:   transaction.AffiliateID,
		Message:       message,
	})
	if o.metrics != nil {
		o.metrics.PaymentsFailed.WithLabelValues(string(batch.Provider)).Inc()
	}
}

func (o *Orchestrator) finishBatch(ctx context.Context, batch *batchdomain.Batch, status batchdomain.BatchStatus, result *BatchExecutionResult) error {
	now := o.clock.Now()
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.batchRepo.SetBatchCompleted(ctx, tx, batch.ID, status, now); err != nil {
			return err
		}
		if err := o.auditSvc.LogTx(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     auditdomain.ActionBatchCompleted,
			TargetType: auditdomain.TargetTypeBatch,
			TargetID:   batch.ID.String(),
			Status:     batchStatusToAudit(status),
			Metadata: map[string]any{
				"batch_number":  batch.BatchNumber,
				"status":        string(status),
				"success_count": result.SuccessCount,
				"failed_count":  result.FailedCount,
				"total_amount":  batch.TotalAmount,
			},
		}); err != nil {
			return err
		}
		return o.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventBatchCompleted,
			Payload: events.BatchPayload{
				BatchID:      batch.ID.String(),
				BatchNumber:  batch.BatchNumber,
				Provider:     string(batch.Provider),
				TotalAmount:  batch.TotalAmount,
				PaymentCount: batch.PaymentCount,
			}.ToMap(),
			DedupeKey: events.EventBatchCompleted + ":" + batch.ID.String(),
		})
	})
}

func (o *Orchestrator) resolvePayeeID(ctx context.Context, affiliateID snowflake.ID) string {
	account, err := o.payeeRepo.FindByAffiliateID(ctx, o.db, affiliateID)
	if err != nil {
		if !errors.Is(err, payeedomain.ErrPayeeNotFound) {
			o.log.Warn("payee lookup failed", zap.String("affiliate_id", affiliateID.String()), zap.Error(err))
		}
		return ""
	}
	return account.PayeeID
}

func batchStatusToAudit(status batchdomain.BatchStatus) auditdomain.Status {
	if status == batchdomain.BatchStatusCompleted {
		return auditdomain.StatusSuccess
	}
	return auditdomain.StatusFailure
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
