package events

// Payout event types published through the outbox.
const (
	EventBatchCreated   = "payout.batch.created"
	EventBatchQueued    = "payout.batch.queued"
	EventBatchCancelled = "payout.batch.cancelled"
	EventBatchCompleted = "payout.batch.completed"
	EventPaymentSettled = "payout.payment.settled"
	EventPaymentFailed  = "payout.payment.failed"
)

// BatchPayload is the minimal rollup data for batch-level events.
type BatchPayload struct {
	BatchID      string `json:"batch_id"`
	BatchNumber  string `json:"batch_number"`
	Provider     string `json:"provider"`
	TotalAmount  int64  `json:"total_amount"`
	PaymentCount int    `json:"payment_count"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p BatchPayload) ToMap() map[string]any {
	return map[string]any{
		"batch_id":      p.BatchID,
		"batch_number":  p.BatchNumber,
		"provider":      p.Provider,
		"total_amount":  p.TotalAmount,
		"payment_count": p.PaymentCount,
	}
}

// PaymentPayload is the minimal rollup data for payment-level events.
type PaymentPayload struct {
	TransactionID string `json:"transaction_id"`
	BatchID       string `json:"batch_id"`
	AffiliateID   string `json:"affiliate_id"`
	Amount        int64  `json:"amount"`
	ProviderTxID  string `json:"provider_tx_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p PaymentPayload) ToMap() map[string]any {
	payload := map[string]any{
		"transaction_id": p.TransactionID,
		"batch_id":       p.BatchID,
		"affiliate_id":   p.AffiliateID,
		"amount":         p.Amount,
	}
	if p.ProviderTxID != "" {
		payload["provider_tx_id"] = p.ProviderTxID
	}
	if p.Error != "" {
		payload["error"] = p.Error
	}
	return payload
}
