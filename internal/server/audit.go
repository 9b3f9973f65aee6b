package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query struct {
		Action     string `form:"action"`
		TargetType string `form:"target_type"`
		TargetID   string `form:"target_id"`
		StartAt    string `form:"start_at"`
		EndAt      string `form:"end_at"`
		CursorID   string `form:"cursor_id"`
		CursorAt   string `form:"cursor_at"`
		Limit      int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := auditdomain.ListFilter{
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		Limit:      query.Limit,
	}

	startAt, err := parseOptionalTime(query.StartAt)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	filter.StartAt = startAt

	endAt, err := parseOptionalTime(query.EndAt)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}
	filter.EndAt = endAt

	if query.CursorID != "" || query.CursorAt != "" {
		cursorID, parseErr := snowflake.ParseString(strings.TrimSpace(query.CursorID))
		if parseErr != nil {
			AbortWithError(c, newValidationError("cursor_id", "invalid_cursor", "invalid cursor_id"))
			return
		}
		cursorAt, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(query.CursorAt))
		if parseErr != nil {
			AbortWithError(c, newValidationError("cursor_at", "invalid_cursor", "invalid cursor_at"))
			return
		}
		filter.Cursor = &auditdomain.Cursor{ID: cursorID, CreatedAt: cursorAt}
	}

	resp, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
