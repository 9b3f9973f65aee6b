package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	"github.com/smallbiznis/disburse/internal/observability/logger"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	"go.uber.org/zap"
)

func (s *Server) ListPayableAffiliates(c *gin.Context) {
	resp, err := s.aggregator.GetAllPayableAffiliates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAffiliateAggregate(c *gin.Context) {
	affiliateID, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	resp, err := s.aggregator.GetAggregatesByAffiliate(c.Request.Context(), affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExecuteBatch(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	resp, err := s.orchSvc.ExecuteBatch(c.Request.Context(), id, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("batch executed via api",
		zap.String("batch_number", resp.BatchNumber),
		zap.Bool("success", resp.Success),
	)
	// Partial failure is still a 200: the run finished, the result
	// says which legs need attention.
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type quickPayRequest struct {
	AffiliateID string `json:"affiliate_id"`
	Provider    string `json:"provider"`
}

func (s *Server) QuickPay(c *gin.Context) {
	var req quickPayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	affiliateID, ok := parseID(c, "affiliate_id", req.AffiliateID)
	if !ok {
		return
	}
	providerName := providerdomain.Provider(strings.TrimSpace(req.Provider))
	if !providerName.Valid() {
		AbortWithError(c, batchdomain.ErrInvalidProvider)
		return
	}

	resp, err := s.orchSvc.QuickPay(c.Request.Context(), affiliateID, providerName, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("quick-pay executed",
		zap.String("affiliate_id", affiliateID.String()),
		zap.Bool("success", resp.Success),
	)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
