package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Append records one AI call. Dollar cost is computed from the model
	// price catalog; an unknown model records zero cost rather than dropping
	// the telemetry.
	Append(ctx context.Context, req AppendRequest) (*Record, error)
	// FindCorrelated resolves the usage record behind a billing transaction:
	// exact trace-id match first, then the closest record within ±window of
	// approxTS. Returns nil when nothing qualifies.
	FindCorrelated(ctx context.Context, accountID snowflake.ID, featureKey string, approxTS time.Time, traceID *string, window time.Duration) (*Record, error)

	CostSummary(ctx context.Context, from, to time.Time) (*CostSummary, error)
	CostByFeature(ctx context.Context, from, to time.Time) ([]FeatureCost, error)
	CostByModel(ctx context.Context, from, to time.Time) ([]ModelCost, error)
	DailyTrend(ctx context.Context, from, to time.Time) ([]DailyCost, error)
}

type AppendRequest struct {
	AccountID      snowflake.ID
	FeatureKey     string
	TraceID        *string
	ModelName      string
	InputTokens    int64
	OutputTokens   int64
	TotalTokens    int64
	CreditsCharged int64
	DurationMs     int64
}
