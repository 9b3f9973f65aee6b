package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

// Provider is a deterministic in-memory payment network used for demo
// and testing. It honors idempotency keys: repeating a request returns
// the recorded result instead of transferring twice.
type Provider struct {
	mu        sync.Mutex
	seq       int
	completed map[string]providerdomain.PaymentResult

	failFor       map[snowflake.ID]error
	transientLeft map[snowflake.ID]int
}

type Option func(*Provider)

// WithPermanentFailure makes every payment for the affiliate fail
// terminally with the given reason.
func WithPermanentFailure(affiliateID snowflake.ID, reason string) Option {
	return func(p *Provider) {
		p.failFor[affiliateID] = fmt.Errorf("%w: %s", providerdomain.ErrPermanent, reason)
	}
}

// WithPayeeNotEligible makes payments for the affiliate fail as a KYC
// rejection.
func WithPayeeNotEligible(affiliateID snowflake.ID) Option {
	return func(p *Provider) {
		p.failFor[affiliateID] = providerdomain.ErrPayeeNotEligible
	}
}

// WithTransientFailures makes the first n attempts for the affiliate
// fail transiently before succeeding.
func WithTransientFailures(affiliateID snowflake.ID, n int) Option {
	return func(p *Provider) {
		p.transientLeft[affiliateID] = n
	}
}

func New(opts ...Option) *Provider {
	p := &Provider{
		completed:     make(map[string]providerdomain.PaymentResult),
		failFor:       make(map[snowflake.ID]error),
		transientLeft: make(map[snowflake.ID]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ExecutePayment(ctx context.Context, req providerdomain.PaymentRequest) (*providerdomain.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrTransient, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if result, ok := p.completed[req.IdempotencyKey]; ok {
		duplicate := result
		return &duplicate, nil
	}

	if remaining, ok := p.transientLeft[req.AffiliateID]; ok && remaining > 0 {
		p.transientLeft[req.AffiliateID] = remaining - 1
		return nil, fmt.Errorf("%w: simulated network timeout", providerdomain.ErrTransient)
	}
	if err, ok := p.failFor[req.AffiliateID]; ok {
		return nil, err
	}

	p.seq++
	result := providerdomain.PaymentResult{
		Success:      true,
		ProviderTxID: fmt.Sprintf("mock-%06d", p.seq),
		Status:       "completed",
	}
	p.completed[req.IdempotencyKey] = result
	out := result
	return &out, nil
}

func (p *Provider) GetPayeeStatus(ctx context.Context, payeeID string) (*providerdomain.PayeeStatus, error) {
	return &providerdomain.PayeeStatus{PayeeID: payeeID, Eligible: true}, nil
}

func (p *Provider) LookupPayment(ctx context.Context, idempotencyKey string) (*providerdomain.LookupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.completed[idempotencyKey]
	if !ok {
		return &providerdomain.LookupResult{Found: false}, nil
	}
	return &providerdomain.LookupResult{
		Found:        true,
		Completed:    result.Success,
		ProviderTxID: result.ProviderTxID,
		Status:       result.Status,
	}, nil
}

// TransferCount reports how many distinct transfers were executed.
// Test helper for idempotency assertions.
func (p *Provider) TransferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
