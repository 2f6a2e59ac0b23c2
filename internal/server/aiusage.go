package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	"go.uber.org/zap"
)

type ingestUsageRequest struct {
	AccountID      string  `json:"account_id"`
	FeatureKey     string  `json:"feature_key"`
	TraceID        *string `json:"trace_id,omitempty"`
	ModelName      string  `json:"model_name"`
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	TotalTokens    int64   `json:"total_tokens"`
	CreditsCharged int64   `json:"credits_charged"`
	DurationMs     int64   `json:"duration_ms"`
}

// UsageRateLimit gates telemetry ingest per account. Disabled entirely when
// redis is not configured.
func (s *Server) UsageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		accountID := strings.TrimSpace(c.Query("account_id"))
		if accountID == "" {
			accountID = c.ClientIP()
		}

		allowed, err := s.usageLimiter.AllowAccount(c.Request.Context(), accountID)
		if err != nil {
			s.log.Warn("usage rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) IngestUsage(c *gin.Context) {
	var req ingestUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := parseSnowflake(req.AccountID)
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid account id"))
		return
	}

	resp, err := s.aiUsageSvc.Append(c.Request.Context(), aiusagedomain.AppendRequest{
		AccountID:      accountID,
		FeatureKey:     strings.TrimSpace(req.FeatureKey),
		TraceID:        trimOptional(req.TraceID),
		ModelName:      strings.TrimSpace(req.ModelName),
		InputTokens:    req.InputTokens,
		OutputTokens:   req.OutputTokens,
		TotalTokens:    req.TotalTokens,
		CreditsCharged: req.CreditsCharged,
		DurationMs:     req.DurationMs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAICost(resp.TotalCostUSD)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
