package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	"gorm.io/gorm"
)

// EnsureDefaultCatalog seeds a starter pricing catalog so a fresh install can
// bill immediately. Existing rows are left untouched; administrators own the
// catalog after first boot.
func EnsureDefaultCatalog(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureFeaturePrices(ctx, tx, node); err != nil {
			return err
		}
		return ensureModelPrices(ctx, tx, node)
	})
}

func ensureFeaturePrices(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	type entry struct {
		Key         string
		Cost        int64
		Description string
	}

	defaults := []entry{
		{"writing_review", 2, "AI scoring of one writing attempt"},
		{"speaking_review", 3, "AI scoring of one speaking attempt"},
		{"mock_exam", 10, "Full AI-graded mock exam"},
	}

	for _, e := range defaults {
		var existing pricingdomain.FeaturePrice
		err := tx.WithContext(ctx).Where("feature_key = ?", e.Key).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		price := pricingdomain.FeaturePrice{
			ID:          node.Generate(),
			FeatureKey:  e.Key,
			CostPerUnit: e.Cost,
			Active:      true,
			Description: e.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&price).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureModelPrices(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	type entry struct {
		Name   string
		Input  float64
		Output float64
	}

	defaults := []entry{
		{"gpt-4o-mini", 0.15, 0.60},
		{"gpt-4o", 2.50, 10.00},
	}

	for _, e := range defaults {
		var existing pricingdomain.ModelPrice
		err := tx.WithContext(ctx).Where("model_name = ?", e.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		price := pricingdomain.ModelPrice{
			ID:                    node.Generate(),
			ModelName:             e.Name,
			InputPricePerMillion:  e.Input,
			OutputPricePerMillion: e.Output,
			Active:                true,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := tx.WithContext(ctx).Create(&price).Error; err != nil {
			return err
		}
	}
	return nil
}
