package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/aiusage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ai_usage_records (
			id, account_id, feature_key, trace_id, model_name,
			input_tokens, output_tokens, total_tokens,
			total_cost_usd, credits_charged, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AccountID,
		record.FeatureKey,
		record.TraceID,
		record.ModelName,
		record.InputTokens,
		record.OutputTokens,
		record.TotalTokens,
		record.TotalCostUSD,
		record.CreditsCharged,
		record.DurationMs,
		record.CreatedAt,
	).Error
}

func (r *repo) FindByTrace(ctx context.Context, db *gorm.DB, accountID snowflake.ID, featureKey, traceID string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).
		Where("account_id = ? AND feature_key = ? AND trace_id = ?", accountID, featureKey, traceID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) ListWithinWindow(ctx context.Context, db *gorm.DB, accountID snowflake.ID, featureKey string, from, to time.Time) ([]domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).
		Where("account_id = ? AND feature_key = ? AND created_at BETWEEN ? AND ?", accountID, featureKey, from.UTC(), to.UTC()).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) CostSummary(ctx context.Context, db *gorm.DB, from, to time.Time) (*domain.CostSummary, error) {
	var summary domain.CostSummary
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS calls,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(total_cost_usd), 0) AS total_cost_usd,
			COALESCE(SUM(credits_charged), 0) AS credits_charged
		 FROM ai_usage_records
		 WHERE created_at BETWEEN ? AND ?`,
		from.UTC(),
		to.UTC(),
	).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *repo) CostByFeature(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.FeatureCost, error) {
	var items []domain.FeatureCost
	err := db.WithContext(ctx).Raw(
		`SELECT
			feature_key,
			COUNT(*) AS calls,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(total_cost_usd), 0) AS total_cost_usd,
			COALESCE(SUM(credits_charged), 0) AS credits_charged
		 FROM ai_usage_records
		 WHERE created_at BETWEEN ? AND ?
		 GROUP BY feature_key
		 ORDER BY total_cost_usd DESC`,
		from.UTC(),
		to.UTC(),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CostByModel(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.ModelCost, error) {
	var items []domain.ModelCost
	err := db.WithContext(ctx).Raw(
		`SELECT
			model_name,
			COUNT(*) AS calls,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(total_cost_usd), 0) AS total_cost_usd
		 FROM ai_usage_records
		 WHERE created_at BETWEEN ? AND ?
		 GROUP BY model_name
		 ORDER BY total_cost_usd DESC`,
		from.UTC(),
		to.UTC(),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DailyTrend(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.DailyCost, error) {
	// DATE() truncates to the UTC calendar day on sqlite, postgres and mysql.
	var items []domain.DailyCost
	err := db.WithContext(ctx).Raw(
		`SELECT
			DATE(created_at) AS day,
			COUNT(*) AS calls,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(total_cost_usd), 0) AS total_cost_usd,
			COALESCE(SUM(credits_charged), 0) AS credits_charged
		 FROM ai_usage_records
		 WHERE created_at BETWEEN ? AND ?
		 GROUP BY DATE(created_at)
		 ORDER BY day ASC`,
		from.UTC(),
		to.UTC(),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
