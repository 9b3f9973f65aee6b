package orchestrator

import (
	"context"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"github.com/smallbiznis/disburse/internal/observability/tracing"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// QuickPay pays out one affiliate right now: aggregate, batch, execute.
// The explicit affiliate selection waives the minimum payout threshold.
func (o *Orchestrator) QuickPay(ctx context.Context, affiliateID snowflake.ID, providerName providerdomain.Provider, actorID string) (*BatchExecutionResult, error) {
	ctx, span := tracing.Start(ctx, "orchestrator.QuickPay",
		attribute.String("affiliate_id", affiliateID.String()),
		attribute.String("provider", string(providerName)),
	)
	defer span.End()

	aggregate, err := o.aggregator.GetAggregatesByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	created, err := o.batchSvc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates:        []commissiondomain.Aggregate{*aggregate},
		Provider:          providerName,
		ActorID:           actorID,
		AllowBelowMinimum: true,
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("quick-pay batch created",
		zap.String("affiliate_id", affiliateID.String()),
		zap.String("batch_number", created.Batch.BatchNumber),
	)
	return o.ExecuteBatch(ctx, created.Batch.ID, actorID)
}
