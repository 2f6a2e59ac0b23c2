package repository

import (
	"context"
	"errors"

	"github.com/prepware/creditengine/internal/pricing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertFeaturePrice(ctx context.Context, db *gorm.DB, price *domain.FeaturePrice) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "feature_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cost_per_unit", "active", "description", "updated_at",
		}),
	}).Create(price).Error
}

func (r *repo) FindFeaturePrice(ctx context.Context, db *gorm.DB, featureKey string) (*domain.FeaturePrice, error) {
	var price domain.FeaturePrice
	err := db.WithContext(ctx).
		Where("feature_key = ?", featureKey).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}

func (r *repo) ListFeaturePrices(ctx context.Context, db *gorm.DB) ([]domain.FeaturePrice, error) {
	var items []domain.FeaturePrice
	err := db.WithContext(ctx).
		Order("feature_key ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertModelPrice(ctx context.Context, db *gorm.DB, price *domain.ModelPrice) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "model_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"input_price_per_million", "output_price_per_million", "active", "updated_at",
		}),
	}).Create(price).Error
}

func (r *repo) FindModelPrice(ctx context.Context, db *gorm.DB, modelName string) (*domain.ModelPrice, error) {
	var price domain.ModelPrice
	err := db.WithContext(ctx).
		Where("model_name = ?", modelName).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}

func (r *repo) ListModelPrices(ctx context.Context, db *gorm.DB) ([]domain.ModelPrice, error) {
	var items []domain.ModelPrice
	err := db.WithContext(ctx).
		Order("model_name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
