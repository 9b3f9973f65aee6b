package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	"github.com/smallbiznis/disburse/internal/audit/repository"
	"github.com/smallbiznis/disburse/internal/clock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuditTest(t *testing.T) (auditdomain.Service, *gorm.DB, *clock.FakeClock) {
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
	if err := db.AutoMigrate(&auditdomain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, db, clk
}

func TestLogPersistsEntry(t *testing.T) {
	svc, db, _ := setupAuditTest(t)
	ctx := context.Background()

	err := svc.Log(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeAdmin,
		ActorID:    "ops",
		Action:     auditdomain.ActionBatchCreated,
		TargetType: auditdomain.TargetTypeBatch,
		TargetID:   "42",
		Status:     auditdomain.StatusSuccess,
		Metadata:   map[string]any{"batch_number": "PB-20260314-000001"},
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	var record auditdomain.AuditLog
	if err := db.First(&record).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Action != auditdomain.ActionBatchCreated || record.ActorType != "admin" {
		t.Fatalf("record: %+v", record)
	}
	if record.ActorID == nil || *record.ActorID != "ops" {
		t.Fatal("actor id not stored")
	}
	if record.Metadata["batch_number"] != "PB-20260314-000001" {
		t.Fatalf("metadata: %v", record.Metadata)
	}
}

func TestLogRejectsBlankAction(t *testing.T) {
	svc, _, _ := setupAuditTest(t)
	err := svc.Log(context.Background(), auditdomain.Entry{
		ActorType: auditdomain.ActorTypeSystem,
		Action:    "   ",
	})
	if !errors.Is(err, auditdomain.ErrInvalidAction) {
		t.Fatalf("expected invalid_action, got %v", err)
	}
}

func TestLogDefaultsStatusToInfo(t *testing.T) {
	svc, db, _ := setupAuditTest(t)
	if err := svc.Log(context.Background(), auditdomain.Entry{
		ActorType: auditdomain.ActorTypeSystem,
		Action:    auditdomain.ActionBatchRecovered,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	var record auditdomain.AuditLog
	if err := db.First(&record).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Status != string(auditdomain.StatusInfo) {
		t.Fatalf("status = %s", record.Status)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, clk := setupAuditTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		action := auditdomain.ActionPaymentCompleted
		if i%2 == 1 {
			action = auditdomain.ActionPaymentFailed
		}
		if err := svc.Log(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeSystem,
			Action:     action,
			TargetType: auditdomain.TargetTypeTransaction,
			TargetID:   "1",
		}); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	completed, err := svc.List(ctx, auditdomain.ListFilter{Action: auditdomain.ActionPaymentCompleted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("completed entries = %d", len(completed))
	}

	// Newest first.
	page, err := svc.List(ctx, auditdomain.ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d", len(page))
	}
	if page[0].CreatedAt.Before(page[1].CreatedAt) {
		t.Fatal("entries should be ordered newest first")
	}

	rest, err := svc.List(ctx, auditdomain.ListFilter{
		Cursor: &auditdomain.Cursor{ID: page[1].ID, CreatedAt: page[1].CreatedAt},
	})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("remaining entries = %d", len(rest))
	}
}
