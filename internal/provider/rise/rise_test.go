package rise

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/disburse/internal/config"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.uber.org/zap"
)

type allowAll struct{}

func (allowAll) CheckPayee(context.Context, snowflake.ID) error { return nil }

type denyAll struct{}

func (denyAll) CheckPayee(context.Context, snowflake.ID) error {
	return providerdomain.ErrPayeeNotEligible
}

func newTestAdapter(t *testing.T, handler http.Handler, eligibility EligibilityChecker) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.RiseConfig{BaseURL: server.URL, APIKey: "test-key"}, zap.NewNop(), eligibility)
}

func TestExecutePaymentSuccess(t *testing.T) {
	var gotIdempotencyKey, gotAuth string
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"rise-123","status":"completed"}`))
	}), allowAll{})

	result, err := adapter.ExecutePayment(context.Background(), providerdomain.PaymentRequest{
		AffiliateID:    100,
		PayeeID:        "payee-1",
		Amount:         6000,
		Currency:       "USD",
		IdempotencyKey: "ptx-1",
	})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if result.ProviderTxID != "rise-123" || !result.Success {
		t.Fatalf("result: %+v", result)
	}
	if gotIdempotencyKey != "ptx-1" {
		t.Fatalf("idempotency key header = %q", gotIdempotencyKey)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestExecutePaymentFailsFastOnIneligiblePayee(t *testing.T) {
	called := false
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), denyAll{})

	_, err := adapter.ExecutePayment(context.Background(), providerdomain.PaymentRequest{
		AffiliateID:    100,
		IdempotencyKey: "ptx-1",
	})
	if !errors.Is(err, providerdomain.ErrPayeeNotEligible) {
		t.Fatalf("expected payee_not_eligible, got %v", err)
	}
	if called {
		t.Fatal("ineligible payee must not hit the network")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, providerdomain.ErrPayeeNotEligible},
		{http.StatusPaymentRequired, providerdomain.ErrPermanent},
		{http.StatusUnprocessableEntity, providerdomain.ErrPermanent},
		{http.StatusBadRequest, providerdomain.ErrPermanent},
		{http.StatusTooManyRequests, providerdomain.ErrTransient},
		{http.StatusInternalServerError, providerdomain.ErrTransient},
		{http.StatusBadGateway, providerdomain.ErrTransient},
	}

	for _, tc := range cases {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}), allowAll{})

		_, err := adapter.ExecutePayment(context.Background(), providerdomain.PaymentRequest{
			AffiliateID:    100,
			IdempotencyKey: "ptx-1",
		})
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestLookupPaymentNotFound(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), allowAll{})

	lookup, err := adapter.LookupPayment(context.Background(), "ptx-missing")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lookup.Found {
		t.Fatal("404 must map to not found, not an error")
	}
}

func TestLookupPaymentFound(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idempotency_key") != "ptx-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"rise-123","status":"completed"}`))
	}), allowAll{})

	lookup, err := adapter.LookupPayment(context.Background(), "ptx-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !lookup.Found || !lookup.Completed || lookup.ProviderTxID != "rise-123" {
		t.Fatalf("lookup: %+v", lookup)
	}
}

func TestGetPayeeStatus(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"payee-1","kyc_status":"pending","payout_eligible":false}`))
	}), allowAll{})

	status, err := adapter.GetPayeeStatus(context.Background(), "payee-1")
	if err != nil {
		t.Fatalf("payee status: %v", err)
	}
	if status.Eligible {
		t.Fatal("payee should not be eligible")
	}
	if status.Reason != "kyc status pending" {
		t.Fatalf("reason = %q", status.Reason)
	}
}
