package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Record captures one AI provider call: token counts, computed dollar cost,
// and the feature/account/trace that triggered it. Immutable, with a
// lifecycle independent of the credit ledger; correlation stitches the two
// after the fact.
type Record struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID      snowflake.ID `json:"account_id" gorm:"not null;index:ix_ai_usage_account_feature,priority:1"`
	FeatureKey     string       `json:"feature_key" gorm:"type:text;not null;index:ix_ai_usage_account_feature,priority:2"`
	TraceID        *string      `json:"trace_id,omitempty" gorm:"type:text;index"`
	ModelName      string       `json:"model_name" gorm:"type:text;not null"`
	InputTokens    int64        `json:"input_tokens" gorm:"not null"`
	OutputTokens   int64        `json:"output_tokens" gorm:"not null"`
	TotalTokens    int64        `json:"total_tokens" gorm:"not null"`
	TotalCostUSD   float64      `json:"total_cost_usd" gorm:"not null"`
	CreditsCharged int64        `json:"credits_charged" gorm:"not null"`
	DurationMs     int64        `json:"duration_ms" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "ai_usage_records" }

var (
	ErrInvalidAccount    = errors.New("invalid_account")
	ErrInvalidFeatureKey = errors.New("invalid_feature_key")
	ErrInvalidModelName  = errors.New("invalid_model_name")
	ErrInvalidTokens     = errors.New("invalid_token_count")
)
