package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	payeedomain "github.com/smallbiznis/disburse/internal/payee/domain"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

var ErrNotFound = errors.New("not_found")

type apiError struct {
	status  int
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code + ": " + e.Message }

func newValidationError(field, code, message string) error {
	return &apiError{status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() error {
	return &apiError{status: http.StatusBadRequest, Code: "invalid_request", Message: "request body or query is malformed"}
}

// AbortWithError maps domain sentinels onto HTTP statuses and writes a
// uniform error envelope.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.status, gin.H{"error": api})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, batchdomain.ErrBatchNotFound),
		errors.Is(err, payeedomain.ErrPayeeNotFound),
		errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, batchdomain.ErrInvalidBatchState):
		status, code = http.StatusConflict, "invalid_batch_state"
	case errors.Is(err, batchdomain.ErrConcurrencyConflict):
		status, code = http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, batchdomain.ErrNoPayableAffiliates),
		errors.Is(err, commissiondomain.ErrNothingToPay):
		status, code = http.StatusBadRequest, "no_payable_affiliates"
	case errors.Is(err, batchdomain.ErrInvalidProvider),
		errors.Is(err, providerdomain.ErrUnknownProvider):
		status, code = http.StatusBadRequest, "invalid_provider"
	case errors.Is(err, batchdomain.ErrMixedCurrencies):
		status, code = http.StatusBadRequest, "mixed_currencies"
	case errors.Is(err, commissiondomain.ErrInvalidAffiliate):
		status, code = http.StatusBadRequest, "invalid_affiliate"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": &apiError{
		status:  status,
		Code:    code,
		Message: err.Error(),
	}})
}
