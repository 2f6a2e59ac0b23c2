package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// parseAnalyticsRange reads the query window: either a rolling `window`
// shortcut (7d or 30d) or explicit from/to bounds. Defaults to the trailing
// 30 days.
func parseAnalyticsRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	switch strings.TrimSpace(c.Query("window")) {
	case "":
	case "7d":
		return now.AddDate(0, 0, -7), now, nil
	case "30d":
		return from, now, nil
	default:
		return time.Time{}, time.Time{}, newValidationError("window", "invalid_window", "window must be 7d or 30d")
	}

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, newValidationError("from", "invalid_from", "invalid from timestamp")
		}
		from = parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, newValidationError("to", "invalid_to", "invalid to timestamp")
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, newValidationError("to", "invalid_range", "to must not precede from")
	}
	return from, to, nil
}

func (s *Server) GetCostSummary(c *gin.Context) {
	from, to, err := parseAnalyticsRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.aiUsageSvc.CostSummary(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCostByFeature(c *gin.Context) {
	from, to, err := parseAnalyticsRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.aiUsageSvc.CostByFeature(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCostByModel(c *gin.Context) {
	from, to, err := parseAnalyticsRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.aiUsageSvc.CostByModel(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDailyTrend(c *gin.Context) {
	from, to, err := parseAnalyticsRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.aiUsageSvc.DailyTrend(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
