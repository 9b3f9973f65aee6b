package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Aggregator reads unclaimed approved commissions and folds them into
// per-affiliate payable aggregates. Read-only.
type Aggregator interface {
	GetAllPayableAffiliates(ctx context.Context) ([]Aggregate, error)
	GetAggregatesByAffiliate(ctx context.Context, affiliateID snowflake.ID) (*Aggregate, error)
}

var (
	ErrInvalidAffiliate = errors.New("invalid_affiliate")
	ErrNothingToPay     = errors.New("nothing_to_pay")
)
