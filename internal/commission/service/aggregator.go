package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"github.com/smallbiznis/disburse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Cfg  config.Config
	Repo commissiondomain.Repository
}

// Aggregator folds unclaimed approved commissions into per-affiliate
// payable totals. It only ever reads commissions not yet linked to a
// transaction, so it is safe to call while a batch is executing.
type Aggregator struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          commissiondomain.Repository
	minimumPayout int64
	currency      string
}

func NewAggregator(p Params) commissiondomain.Aggregator {
	return &Aggregator{
		db:            p.DB,
		log:           p.Log.Named("commission.aggregator"),
		repo:          p.Repo,
		minimumPayout: p.Cfg.MinimumPayoutCents,
		currency:      p.Cfg.DefaultCurrency,
	}
}

func (a *Aggregator) GetAllPayableAffiliates(ctx context.Context) ([]commissiondomain.Aggregate, error) {
	commissions, err := a.repo.ListUnclaimedApproved(ctx, a.db, nil)
	if err != nil {
		return nil, err
	}

	grouped := map[snowflake.ID][]commissiondomain.Commission{}
	for _, commission := range commissions {
		grouped[commission.AffiliateID] = append(grouped[commission.AffiliateID], commission)
	}

	aggregates := make([]commissiondomain.Aggregate, 0, len(grouped))
	for affiliateID, entries := range grouped {
		aggregates = append(aggregates, a.fold(affiliateID, entries))
	}
	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].AffiliateID < aggregates[j].AffiliateID
	})
	return aggregates, nil
}

func (a *Aggregator) GetAggregatesByAffiliate(ctx context.Context, affiliateID snowflake.ID) (*commissiondomain.Aggregate, error) {
	if affiliateID == 0 {
		return nil, commissiondomain.ErrInvalidAffiliate
	}
	commissions, err := a.repo.ListUnclaimedApproved(ctx, a.db, &affiliateID)
	if err != nil {
		return nil, err
	}
	if len(commissions) == 0 {
		return nil, commissiondomain.ErrNothingToPay
	}
	aggregate := a.fold(affiliateID, commissions)
	return &aggregate, nil
}

func (a *Aggregator) fold(affiliateID snowflake.ID, commissions []commissiondomain.Commission) commissiondomain.Aggregate {
	aggregate := commissiondomain.Aggregate{
		AffiliateID: affiliateID,
		Currency:    a.currency,
	}
	for _, commission := range commissions {
		aggregate.TotalAmount += commission.Amount
		aggregate.CommissionIDs = append(aggregate.CommissionIDs, commission.ID)
		aggregate.Count++
		if aggregate.OldestEarnedAt.IsZero() || commission.EarnedAt.Before(aggregate.OldestEarnedAt) {
			aggregate.OldestEarnedAt = commission.EarnedAt
		}
		if commission.Currency != "" {
			aggregate.Currency = commission.Currency
		}
	}

	if aggregate.TotalAmount >= a.minimumPayout {
		aggregate.CanPayout = true
	} else {
		aggregate.Reason = fmt.Sprintf("Below minimum payout of %s", FormatAmount(a.minimumPayout))
	}
	return aggregate
}

// FormatAmount renders cents as a dollar string, e.g. 5000 -> "$50.00".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
