package mock

import (
	"context"
	"errors"
	"testing"

	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

func TestExecutePaymentIdempotency(t *testing.T) {
	provider := New()
	ctx := context.Background()
	request := providerdomain.PaymentRequest{
		AffiliateID:    100,
		Amount:         6000,
		Currency:       "USD",
		IdempotencyKey: "ptx-1",
	}

	first, err := provider.ExecutePayment(ctx, request)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	second, err := provider.ExecutePayment(ctx, request)
	if err != nil {
		t.Fatalf("duplicate payment: %v", err)
	}

	if first.ProviderTxID != second.ProviderTxID {
		t.Fatalf("duplicate returned a different tx id: %s vs %s", first.ProviderTxID, second.ProviderTxID)
	}
	if provider.TransferCount() != 1 {
		t.Fatalf("transfers = %d, want 1", provider.TransferCount())
	}
}

func TestTransientFailuresCountDown(t *testing.T) {
	provider := New(WithTransientFailures(100, 2))
	ctx := context.Background()
	request := providerdomain.PaymentRequest{AffiliateID: 100, Amount: 6000, IdempotencyKey: "ptx-1"}

	for i := 0; i < 2; i++ {
		_, err := provider.ExecutePayment(ctx, request)
		if !providerdomain.IsTransient(err) {
			t.Fatalf("attempt %d: expected transient, got %v", i+1, err)
		}
	}
	if _, err := provider.ExecutePayment(ctx, request); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
}

func TestPermanentFailureClassification(t *testing.T) {
	provider := New(WithPermanentFailure(100, "account closed"))
	_, err := provider.ExecutePayment(context.Background(), providerdomain.PaymentRequest{AffiliateID: 100, IdempotencyKey: "ptx-1"})
	if !errors.Is(err, providerdomain.ErrPermanent) {
		t.Fatalf("expected permanent, got %v", err)
	}
	if providerdomain.IsTransient(err) {
		t.Fatal("permanent failure must not classify as transient")
	}
}

func TestLookupPayment(t *testing.T) {
	provider := New()
	ctx := context.Background()

	lookup, err := provider.LookupPayment(ctx, "ptx-unknown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lookup.Found {
		t.Fatal("unknown key should not be found")
	}

	result, err := provider.ExecutePayment(ctx, providerdomain.PaymentRequest{AffiliateID: 100, IdempotencyKey: "ptx-1"})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	lookup, err = provider.LookupPayment(ctx, "ptx-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !lookup.Found || !lookup.Completed || lookup.ProviderTxID != result.ProviderTxID {
		t.Fatalf("lookup: %+v", lookup)
	}
}
