package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

// actorID identifies the operator for the audit trail. The admin
// surface sits behind the deployment's own access layer, so a header
// is enough here.
func actorID(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor-ID"))
	if actor == "" {
		actor = "admin"
	}
	return actor
}

func parseID(c *gin.Context, field, raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(field, "invalid_id", "invalid "+field))
		return 0, false
	}
	return id, true
}

type createBatchRequest struct {
	Provider     string   `json:"provider"`
	AffiliateIDs []string `json:"affiliate_ids"`
}

func (s *Server) CreateBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	providerName := providerdomain.Provider(strings.TrimSpace(req.Provider))
	if !providerName.Valid() {
		AbortWithError(c, batchdomain.ErrInvalidProvider)
		return
	}

	ctx := c.Request.Context()
	var aggregates []commissiondomain.Aggregate
	explicit := len(req.AffiliateIDs) > 0
	if explicit {
		for _, raw := range req.AffiliateIDs {
			affiliateID, ok := parseID(c, "affiliate_ids", raw)
			if !ok {
				return
			}
			aggregate, err := s.aggregator.GetAggregatesByAffiliate(ctx, affiliateID)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			aggregates = append(aggregates, *aggregate)
		}
	} else {
		all, err := s.aggregator.GetAllPayableAffiliates(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		aggregates = all
	}

	resp, err := s.batchSvc.CreateBatch(ctx, batchdomain.CreateBatchRequest{
		Aggregates: aggregates,
		Provider:   providerName,
		ActorID:    actorID(c),
		// Explicit selection waives the minimum payout threshold.
		AllowBelowMinimum: explicit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBatches(c *gin.Context) {
	var query struct {
		Status   string `form:"status"`
		Provider string `form:"provider"`
		Limit    int    `form:"limit"`
		Offset   int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.batchSvc.GetAllBatches(c.Request.Context(),
		batchdomain.ListFilter{
			Status:   batchdomain.BatchStatus(strings.TrimSpace(query.Status)),
			Provider: providerdomain.Provider(strings.TrimSpace(query.Provider)),
		},
		batchdomain.Pagination{Limit: query.Limit, Offset: query.Offset},
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBatchStats(c *gin.Context) {
	resp, err := s.batchSvc.GetBatchStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBatch(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	resp, err := s.batchSvc.GetBatchByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBatchTransactions(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	resp, err := s.batchSvc.GetTransactions(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) QueueBatch(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	if err := s.batchSvc.QueueBatch(c.Request.Context(), id, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (s *Server) CancelBatch(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	if err := s.batchSvc.CancelBatch(c.Request.Context(), id, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) DeleteBatch(c *gin.Context) {
	id, ok := parseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	if err := s.batchSvc.DeleteBatch(c.Request.Context(), id, actorID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
