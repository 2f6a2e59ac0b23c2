package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	UpsertFeaturePrice(ctx context.Context, db *gorm.DB, price *FeaturePrice) error
	FindFeaturePrice(ctx context.Context, db *gorm.DB, featureKey string) (*FeaturePrice, error)
	ListFeaturePrices(ctx context.Context, db *gorm.DB) ([]FeaturePrice, error)
	UpsertModelPrice(ctx context.Context, db *gorm.DB, price *ModelPrice) error
	FindModelPrice(ctx context.Context, db *gorm.DB, modelName string) (*ModelPrice, error)
	ListModelPrices(ctx context.Context, db *gorm.DB) ([]ModelPrice, error)
}
