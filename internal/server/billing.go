package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/prepware/creditengine/internal/billing/domain"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
)

type billRequest struct {
	AccountID   string  `json:"account_id"`
	FeatureKey  string  `json:"feature_key"`
	TraceID     *string `json:"trace_id,omitempty"`
	AttemptID   *string `json:"attempt_id,omitempty"`
	Description string  `json:"description"`
}

type refundRequest struct {
	AccountID            string  `json:"account_id"`
	BillingTransactionID *string `json:"billing_transaction_id,omitempty"`
	FeatureKey           string  `json:"feature_key"`
	TraceID              *string `json:"trace_id,omitempty"`
	AttemptID            *string `json:"attempt_id,omitempty"`
	Reason               string  `json:"reason"`
}

type rewardRequest struct {
	AccountID   string `json:"account_id"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	GrantedBy   *string `json:"granted_by,omitempty"`
	Description string `json:"description"`
}

func (s *Server) Bill(c *gin.Context) {
	var req billRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := parseSnowflake(req.AccountID)
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid account id"))
		return
	}

	attemptID, err := parseOptionalSnowflake(req.AttemptID)
	if err != nil {
		AbortWithError(c, newValidationError("attempt_id", "invalid_attempt_id", "invalid attempt id"))
		return
	}

	resp, err := s.billingSvc.Bill(c.Request.Context(), billingdomain.BillRequest{
		AccountID:   accountID,
		FeatureKey:  strings.TrimSpace(req.FeatureKey),
		TraceID:     trimOptional(req.TraceID),
		AttemptID:   attemptID,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RefundCredits(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := parseSnowflake(req.AccountID)
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid account id"))
		return
	}

	billingTrxID, err := parseOptionalSnowflake(req.BillingTransactionID)
	if err != nil {
		AbortWithError(c, newValidationError("billing_transaction_id", "invalid_transaction_id", "invalid transaction id"))
		return
	}

	attemptID, err := parseOptionalSnowflake(req.AttemptID)
	if err != nil {
		AbortWithError(c, newValidationError("attempt_id", "invalid_attempt_id", "invalid attempt id"))
		return
	}

	resp, err := s.billingSvc.Refund(c.Request.Context(), billingdomain.RefundRequest{
		AccountID:            accountID,
		BillingTransactionID: billingTrxID,
		FeatureKey:           strings.TrimSpace(req.FeatureKey),
		TraceID:              trimOptional(req.TraceID),
		AttemptID:            attemptID,
		Reason:               strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GrantReward(c *gin.Context) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, err := parseSnowflake(req.AccountID)
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid account id"))
		return
	}

	grantedBy, err := parseOptionalSnowflake(req.GrantedBy)
	if err != nil {
		AbortWithError(c, newValidationError("granted_by", "invalid_granted_by", "invalid granted_by id"))
		return
	}

	resp, err := s.billingSvc.Reward(c.Request.Context(), billingdomain.RewardRequest{
		AccountID:   accountID,
		Type:        ledgerdomain.TransactionType(strings.TrimSpace(req.Type)),
		Amount:      req.Amount,
		GrantedBy:   grantedBy,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBalance(c *gin.Context) {
	accountID, err := parseSnowflake(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_account", "invalid account id"))
		return
	}

	resp, err := s.billingSvc.Balance(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseSnowflake(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func parseOptionalSnowflake(raw *string) (*snowflake.ID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
