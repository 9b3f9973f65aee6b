package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Provider identifies a payment network. The set is closed: adding a
// network means adding a constant and one registry entry.
type Provider string

const (
	ProviderMock Provider = "mock"
	ProviderRise Provider = "rise"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderMock, ProviderRise:
		return true
	default:
		return false
	}
}

// PaymentRequest is one transfer instruction. IdempotencyKey is derived
// from the payout transaction id; repeating a request with the same key
// must never produce a second transfer.
type PaymentRequest struct {
	AffiliateID    snowflake.ID
	PayeeID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// PaymentResult is the provider's answer for a single transfer.
type PaymentResult struct {
	Success      bool
	ProviderTxID string
	Status       string
}

// PayeeStatus reports whether a payee can currently receive funds.
type PayeeStatus struct {
	PayeeID  string
	Eligible bool
	Reason   string
}

// LookupResult resolves the outcome of a possibly submitted transfer by
// idempotency key. Found=false means the provider never saw the key.
type LookupResult struct {
	Found        bool
	Completed    bool
	ProviderTxID string
	Status       string
}

// PaymentProvider executes transfers against one payment network.
type PaymentProvider interface {
	ExecutePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	GetPayeeStatus(ctx context.Context, payeeID string) (*PayeeStatus, error)
	LookupPayment(ctx context.Context, idempotencyKey string) (*LookupResult, error)
}

// Failure classification. Transient failures are retried by the
// orchestrator; everything else is terminal for the transaction.
var (
	ErrTransient        = errors.New("provider_transient")
	ErrPermanent        = errors.New("provider_permanent")
	ErrPayeeNotEligible = errors.New("payee_not_eligible")
	ErrUnknownProvider  = errors.New("unknown_provider")
)

// IsTransient reports whether err should be retried per policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
