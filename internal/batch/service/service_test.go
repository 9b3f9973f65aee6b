package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	auditrepository "github.com/smallbiznis/disburse/internal/audit/repository"
	auditservice "github.com/smallbiznis/disburse/internal/audit/service"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"github.com/smallbiznis/disburse/internal/batch/repository"
	"github.com/smallbiznis/disburse/internal/clock"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/disburse/internal/commission/repository"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/events"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type batchTestEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   batchdomain.Service
}

func setupBatchTest(t *testing.T) *batchTestEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&commissiondomain.Commission{},
		&batchdomain.Batch{},
		&batchdomain.Transaction{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE payout_events (
			id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			dedupe_key TEXT UNIQUE,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("create payout_events: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clk,
		Cfg:            config.Config{DefaultCurrency: "USD", MinimumPayoutCents: 5000},
		Repo:           repository.Provide(),
		CommissionRepo: commissionrepository.Provide(),
		AuditSvc:       auditSvc,
		Outbox:         events.NewOutbox(node, clk),
	})

	return &batchTestEnv{db: db, node: node, clock: clk, svc: svc}
}

func (e *batchTestEnv) seedCommissions(t *testing.T, affiliateID snowflake.ID, amounts ...int64) []snowflake.ID {
	t.Helper()
	ids := make([]snowflake.ID, 0, len(amounts))
	now := e.clock.Now()
	for _, amount := range amounts {
		commission := commissiondomain.Commission{
			ID:          e.node.Generate(),
			AffiliateID: affiliateID,
			Amount:      amount,
			Currency:    "USD",
			Status:      commissiondomain.CommissionStatusApproved,
			EarnedAt:    now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.db.Create(&commission).Error; err != nil {
			t.Fatalf("seed commission: %v", err)
		}
		ids = append(ids, commission.ID)
	}
	return ids
}

func (e *batchTestEnv) aggregate(affiliateID snowflake.ID, total int64, ids []snowflake.ID) commissiondomain.Aggregate {
	return commissiondomain.Aggregate{
		AffiliateID:   affiliateID,
		TotalAmount:   total,
		Currency:      "USD",
		CommissionIDs: ids,
		Count:         len(ids),
		CanPayout:     total >= 5000,
	}
}

func TestCreateBatchClaimsCommissions(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 3000, 3000)

	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if result.Batch.Status != batchdomain.BatchStatusPending {
		t.Fatalf("batch status = %s", result.Batch.Status)
	}
	if result.Batch.TotalAmount != 6000 || result.Batch.PaymentCount != 1 {
		t.Fatalf("batch totals: amount=%d count=%d", result.Batch.TotalAmount, result.Batch.PaymentCount)
	}
	if result.TransactionCount != 1 {
		t.Fatalf("transaction count = %d", result.TransactionCount)
	}

	var claimed int64
	if err := env.db.Model(&commissiondomain.Commission{}).
		Where("transaction_id IS NOT NULL").Count(&claimed).Error; err != nil {
		t.Fatalf("count claimed: %v", err)
	}
	if claimed != 2 {
		t.Fatalf("claimed commissions = %d", claimed)
	}

	var audits int64
	if err := env.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionBatchCreated).Count(&audits).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 1 {
		t.Fatalf("audit rows = %d", audits)
	}
}

func TestCreateBatchConflictOnAlreadyClaimed(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	aggregate := env.aggregate(100, 6000, ids)

	if _, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{aggregate},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same stale aggregate again: the claim must fail atomically.
	_, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{aggregate},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if !errors.Is(err, batchdomain.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency_conflict, got %v", err)
	}

	var batches int64
	if err := env.db.Model(&batchdomain.Batch{}).Count(&batches).Error; err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if batches != 1 {
		t.Fatalf("batches = %d, conflict must not leave a second batch", batches)
	}
}

func TestCreateBatchSkipsBelowMinimum(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 1200)

	_, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 1200, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if !errors.Is(err, batchdomain.ErrNoPayableAffiliates) {
		t.Fatalf("expected no_payable_affiliates, got %v", err)
	}

	// Explicit selection waives the threshold.
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates:        []commissiondomain.Aggregate{env.aggregate(100, 1200, ids)},
		Provider:          providerdomain.ProviderMock,
		ActorID:           "ops",
		AllowBelowMinimum: true,
	})
	if err != nil {
		t.Fatalf("create below minimum: %v", err)
	}
	if result.Batch.TotalAmount != 1200 {
		t.Fatalf("batch total = %d", result.Batch.TotalAmount)
	}
}

func TestCreateBatchRejectsInvalidProvider(t *testing.T) {
	env := setupBatchTest(t)
	_, err := env.svc.CreateBatch(context.Background(), batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, []snowflake.ID{1})},
		Provider:   providerdomain.Provider("paypal"),
		ActorID:    "ops",
	})
	if !errors.Is(err, batchdomain.ErrInvalidProvider) {
		t.Fatalf("expected invalid_provider, got %v", err)
	}
}

func TestQueueBatchTransitions(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.QueueBatch(ctx, result.Batch.ID, "ops"); err != nil {
		t.Fatalf("queue: %v", err)
	}

	batch, err := env.svc.GetBatchByID(ctx, result.Batch.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if batch.Status != batchdomain.BatchStatusQueued {
		t.Fatalf("status = %s", batch.Status)
	}

	// Queue is only legal from pending.
	if err := env.svc.QueueBatch(ctx, result.Batch.ID, "ops"); !errors.Is(err, batchdomain.ErrInvalidBatchState) {
		t.Fatalf("expected invalid_batch_state, got %v", err)
	}

	// One queued event from the legal transition; the rejected re-queue
	// rolled back before publishing.
	var queuedEvents int64
	if err := env.db.Table("payout_events").
		Where("event_type = ?", events.EventBatchQueued).Count(&queuedEvents).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if queuedEvents != 1 {
		t.Fatalf("queued events = %d", queuedEvents)
	}
}

func TestCreateBatchRejectsMixedCurrencies(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	usd := env.seedCommissions(t, 100, 6000)
	eur := env.seedCommissions(t, 200, 7000)

	_, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{
			env.aggregate(100, 6000, usd),
			{AffiliateID: 200, TotalAmount: 7000, Currency: "EUR", CommissionIDs: eur, Count: 1, CanPayout: true},
		},
		Provider: providerdomain.ProviderMock,
		ActorID:  "ops",
	})
	if !errors.Is(err, batchdomain.ErrMixedCurrencies) {
		t.Fatalf("expected mixed_currencies, got %v", err)
	}

	// Rejected before claiming: every commission stays payable and no
	// batch row exists.
	var claimed int64
	if err := env.db.Model(&commissiondomain.Commission{}).
		Where("transaction_id IS NOT NULL").Count(&claimed).Error; err != nil {
		t.Fatalf("count claimed: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("claimed commissions = %d", claimed)
	}
	var batches int64
	if err := env.db.Model(&batchdomain.Batch{}).Count(&batches).Error; err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if batches != 0 {
		t.Fatalf("batches = %d", batches)
	}
}

func TestCancelBatchReleasesCommissions(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.CancelBatch(ctx, result.Batch.ID, "ops"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	batch, err := env.svc.GetBatchByID(ctx, result.Batch.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if batch.Status != batchdomain.BatchStatusCancelled {
		t.Fatalf("status = %s", batch.Status)
	}
	if batch.TotalAmount != 0 || batch.PaymentCount != 0 {
		t.Fatalf("cancelled batch totals: amount=%d count=%d", batch.TotalAmount, batch.PaymentCount)
	}

	transactions, err := env.svc.GetTransactions(ctx, result.Batch.ID)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	for _, transaction := range transactions {
		if transaction.Status != batchdomain.TransactionStatusCancelled {
			t.Fatalf("transaction status = %s", transaction.Status)
		}
	}

	var claimed int64
	if err := env.db.Model(&commissiondomain.Commission{}).
		Where("transaction_id IS NOT NULL").Count(&claimed).Error; err != nil {
		t.Fatalf("count claimed: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("claimed after cancel = %d, commissions must return to the payable pool", claimed)
	}
}

func TestCancelIsIllegalOnceProcessing(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.db.Exec(
		`UPDATE payout_batches SET status = ? WHERE id = ?`,
		batchdomain.BatchStatusProcessing, result.Batch.ID,
	).Error; err != nil {
		t.Fatalf("force processing: %v", err)
	}

	if err := env.svc.CancelBatch(ctx, result.Batch.ID, "ops"); !errors.Is(err, batchdomain.ErrInvalidBatchState) {
		t.Fatalf("expected invalid_batch_state, got %v", err)
	}
}

func TestDeleteBatchOnlyPending(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.QueueBatch(ctx, result.Batch.ID, "ops"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := env.svc.DeleteBatch(ctx, result.Batch.ID, "ops"); !errors.Is(err, batchdomain.ErrInvalidBatchState) {
		t.Fatalf("expected invalid_batch_state for queued delete, got %v", err)
	}
}

func TestDeleteBatchRemovesRowsAndReleases(t *testing.T) {
	env := setupBatchTest(t)
	ctx := context.Background()
	ids := env.seedCommissions(t, 100, 6000)
	result, err := env.svc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: []commissiondomain.Aggregate{env.aggregate(100, 6000, ids)},
		Provider:   providerdomain.ProviderMock,
		ActorID:    "ops",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.DeleteBatch(ctx, result.Batch.ID, "ops"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.svc.GetBatchByID(ctx, result.Batch.ID); !errors.Is(err, batchdomain.ErrBatchNotFound) {
		t.Fatalf("expected batch_not_found, got %v", err)
	}

	var claimed int64
	if err := env.db.Model(&commissiondomain.Commission{}).
		Where("transaction_id IS NOT NULL").Count(&claimed).Error; err != nil {
		t.Fatalf("count claimed: %v", err)
	}
	if claimed != 0 {
		t.Fatalf("claimed after delete = %d", claimed)
	}
}

func TestBatchNumberFormat(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	id := node.Generate()
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	number := batchNumber(id, now)
	if len(number) != len("PB-20260314-")+6 {
		t.Fatalf("batch number %q has unexpected length", number)
	}
	if number[:12] != "PB-20260314-" {
		t.Fatalf("batch number %q has wrong prefix", number)
	}
}
