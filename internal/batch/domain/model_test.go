package domain

import "testing"

func TestBatchStatusTerminal(t *testing.T) {
	cases := []struct {
		status BatchStatus
		want   bool
	}{
		{BatchStatusPending, false},
		{BatchStatusQueued, false},
		{BatchStatusProcessing, false},
		{BatchStatusCompleted, true},
		{BatchStatusFailed, true},
		{BatchStatusCancelled, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.want {
			t.Errorf("BatchStatus(%s).Terminal() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestTransactionStatusTerminal(t *testing.T) {
	cases := []struct {
		status TransactionStatus
		want   bool
	}{
		{TransactionStatusPending, false},
		{TransactionStatusProcessing, false},
		{TransactionStatusCompleted, true},
		{TransactionStatusFailed, true},
		{TransactionStatusCancelled, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.want {
			t.Errorf("TransactionStatus(%s).Terminal() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestIdempotencyKeyStableAcrossCopies(t *testing.T) {
	transaction := Transaction{ID: 123456789}
	if got := transaction.IdempotencyKey(); got != "ptx-123456789" {
		t.Fatalf("idempotency key = %q", got)
	}
	copied := transaction
	if copied.IdempotencyKey() != transaction.IdempotencyKey() {
		t.Fatal("idempotency key must be a pure function of the id")
	}
}
