package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is append-only; analytics and correlation are pure reads.
type Repository interface {
	Append(ctx context.Context, db *gorm.DB, record *Record) error
	// FindByTrace is the exact correlation path: trace ids are unique per
	// logical request, so a hit is authoritative.
	FindByTrace(ctx context.Context, db *gorm.DB, accountID snowflake.ID, featureKey, traceID string) (*Record, error)
	// ListWithinWindow returns records for (account, feature) created within
	// [from, to], newest first, for the timestamp-fallback correlation.
	ListWithinWindow(ctx context.Context, db *gorm.DB, accountID snowflake.ID, featureKey string, from, to time.Time) ([]Record, error)

	CostSummary(ctx context.Context, db *gorm.DB, from, to time.Time) (*CostSummary, error)
	CostByFeature(ctx context.Context, db *gorm.DB, from, to time.Time) ([]FeatureCost, error)
	CostByModel(ctx context.Context, db *gorm.DB, from, to time.Time) ([]ModelCost, error)
	DailyTrend(ctx context.Context, db *gorm.DB, from, to time.Time) ([]DailyCost, error)
}

// CostSummary is the aggregate of all usage records in a range.
type CostSummary struct {
	Calls          int64   `json:"calls"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	CreditsCharged int64   `json:"credits_charged"`
}

type FeatureCost struct {
	FeatureKey     string  `json:"feature_key"`
	Calls          int64   `json:"calls"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	CreditsCharged int64   `json:"credits_charged"`
}

type ModelCost struct {
	ModelName    string  `json:"model_name"`
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

type DailyCost struct {
	Day            string  `json:"day"`
	Calls          int64   `json:"calls"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	CreditsCharged int64   `json:"credits_charged"`
}
