package rise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/observability/logger"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.uber.org/zap"
)

// EligibilityChecker answers whether an affiliate's payee account is
// KYC-approved, from local state. The adapter consults it before any
// network call so ineligible payees fail fast.
type EligibilityChecker interface {
	CheckPayee(ctx context.Context, affiliateID snowflake.ID) error
}

// Adapter wraps the Rise payment network REST API.
type Adapter struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	log         *zap.Logger
	eligibility EligibilityChecker
}

func New(cfg config.RiseConfig, log *zap.Logger, eligibility EligibilityChecker) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: timeout},
		log:         log.Named("provider.rise"),
		eligibility: eligibility,
	}
}

type paymentPayload struct {
	PayeeID  string `json:"payee_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (a *Adapter) ExecutePayment(ctx context.Context, req providerdomain.PaymentRequest) (*providerdomain.PaymentResult, error) {
	if a.eligibility != nil {
		if err := a.eligibility.CheckPayee(ctx, req.AffiliateID); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(paymentPayload{
		PayeeID:  req.PayeeID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode payment: %v", providerdomain.ErrPermanent, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := decodePayment(resp)
	if err != nil {
		return nil, err
	}
	a.log.Debug("payment executed",
		zap.String("provider_tx_id", payload.ID),
		zap.String("payee_id", logger.MaskPayeeID(req.PayeeID)),
	)
	return &providerdomain.PaymentResult{
		Success:      true,
		ProviderTxID: payload.ID,
		Status:       payload.Status,
	}, nil
}

func (a *Adapter) GetPayeeStatus(ctx context.Context, payeeID string) (*providerdomain.PayeeStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/payees/"+url.PathEscape(payeeID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrPermanent, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &providerdomain.PayeeStatus{PayeeID: payeeID, Eligible: false, Reason: "payee not found"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var payload struct {
		ID       string `json:"id"`
		KYC      string `json:"kyc_status"`
		Eligible bool   `json:"payout_eligible"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode payee: %v", providerdomain.ErrTransient, err)
	}
	status := &providerdomain.PayeeStatus{PayeeID: payeeID, Eligible: payload.Eligible}
	if !payload.Eligible {
		status.Reason = "kyc status " + payload.KYC
	}
	return status, nil
}

func (a *Adapter) LookupPayment(ctx context.Context, idempotencyKey string) (*providerdomain.LookupResult, error) {
	endpoint := a.baseURL + "/v1/payments?idempotency_key=" + url.QueryEscape(idempotencyKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrPermanent, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &providerdomain.LookupResult{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var payload paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode lookup: %v", providerdomain.ErrTransient, err)
	}
	return &providerdomain.LookupResult{
		Found:        true,
		Completed:    payload.Status == "completed",
		ProviderTxID: payload.ID,
		Status:       payload.Status,
	}, nil
}

func decodePayment(resp *http.Response) (*paymentResponse, error) {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var payload paymentResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			// The transfer may have gone through; callers reconcile by
			// idempotency key rather than resubmitting.
			return nil, fmt.Errorf("%w: decode payment: %v", providerdomain.ErrTransient, err)
		}
		return &payload, nil
	}
	return nil, classifyStatus(resp)
}

// classifyStatus maps Rise HTTP failures onto the retry taxonomy.
func classifyStatus(resp *http.Response) error {
	snippet := readSnippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", providerdomain.ErrPayeeNotEligible, snippet)
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusUnprocessableEntity,
		resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: rise rejected payment (%d): %s", providerdomain.ErrPermanent, resp.StatusCode, snippet)
	default:
		return fmt.Errorf("%w: rise unavailable (%d)", providerdomain.ErrTransient, resp.StatusCode)
	}
}

func readSnippet(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
