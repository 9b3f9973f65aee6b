package orchestrator

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"github.com/smallbiznis/disburse/internal/clock"
	"github.com/smallbiznis/disburse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// staleAfter is how long a batch may sit in processing before the
// recovery worker assumes its runner died.
const staleAfter = 5 * time.Minute

// RecoveryWorker periodically resumes batches stranded in processing by
// a crashed runner. Resumption is safe: terminal legs are skipped and
// in-flight legs are reconciled by idempotency key.
type RecoveryWorker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.RecoveryConfig
	svc      Service
	stopped  chan struct{}
	shutdown context.CancelFunc
}

type RecoveryParams struct {
	fx.In

	Lc    fx.Lifecycle
	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
	Svc   Service
}

func NewRecoveryWorker(p RecoveryParams) *RecoveryWorker {
	worker := &RecoveryWorker{
		db:      p.DB,
		log:     p.Log.Named("orchestrator.recovery"),
		clock:   p.Clock,
		cfg:     p.Cfg.Recovery,
		svc:     p.Svc,
		stopped: make(chan struct{}),
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !worker.cfg.Enabled {
				worker.log.Info("recovery worker disabled")
				close(worker.stopped)
				return nil
			}
			ctx, cancel := context.WithCancel(context.Background())
			worker.shutdown = cancel
			go worker.loop(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if worker.shutdown != nil {
				worker.shutdown()
			}
			select {
			case <-worker.stopped:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return worker
}

func (w *RecoveryWorker) loop(ctx context.Context) {
	defer close(w.stopped)

	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce resumes every stale processing batch it can find, up to the
// configured scan size.
func (w *RecoveryWorker) RunOnce(ctx context.Context) {
	batchIDs, err := w.findStaleBatches(ctx)
	if err != nil {
		w.log.Error("stale batch scan failed", zap.Error(err))
		return
	}

	for _, batchID := range batchIDs {
		result, err := w.svc.ResumeBatch(ctx, batchID)
		if err != nil {
			w.log.Error("batch resume failed",
				zap.String("batch_id", batchID.String()),
				zap.Error(err),
			)
			continue
		}
		w.log.Info("batch resumed",
			zap.String("batch_number", result.BatchNumber),
			zap.Int("success_count", result.SuccessCount),
			zap.Int("failed_count", result.FailedCount),
		)
	}
}

func (w *RecoveryWorker) findStaleBatches(ctx context.Context) ([]snowflake.ID, error) {
	limit := w.cfg.BatchSize
	if limit <= 0 {
		limit = 10
	}
	cutoff := w.clock.Now().Add(-staleAfter)

	var batchIDs []snowflake.ID
	err := w.db.WithContext(ctx).Raw(
		`SELECT id FROM payout_batches
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		batchdomain.BatchStatusProcessing, cutoff, limit,
	).Scan(&batchIDs).Error
	if err != nil {
		return nil, err
	}
	return batchIDs, nil
}
