package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/cache"
	"github.com/prepware/creditengine/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	ResolverCache cache.PriceResolverCache `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	resolverCache cache.PriceResolverCache
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("pricing.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		resolverCache: p.ResolverCache,
	}
}

func (s *Service) GetPrice(ctx context.Context, featureKey string) (*domain.FeaturePrice, error) {
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return nil, domain.ErrInvalidFeatureKey
	}

	if s.resolverCache != nil {
		if cached, ok := s.resolverCache.GetFeaturePrice(featureKey); ok {
			return cached, nil
		}
	}

	price, err := s.repo.FindFeaturePrice(ctx, s.db, featureKey)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, domain.ErrPriceNotFound
	}

	if s.resolverCache != nil {
		s.resolverCache.SetFeaturePrice(featureKey, price)
	}
	return price, nil
}

func (s *Service) ListPrices(ctx context.Context) ([]domain.FeaturePrice, error) {
	return s.repo.ListFeaturePrices(ctx, s.db)
}

func (s *Service) SetPrice(ctx context.Context, req domain.SetPriceRequest) (*domain.FeaturePrice, error) {
	featureKey := strings.TrimSpace(req.FeatureKey)
	if featureKey == "" {
		return nil, domain.ErrInvalidFeatureKey
	}
	if req.CostPerUnit <= 0 {
		return nil, domain.ErrInvalidCost
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	price := &domain.FeaturePrice{
		ID:          s.genID.Generate(),
		FeatureKey:  featureKey,
		CostPerUnit: req.CostPerUnit,
		Active:      active,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.UpsertFeaturePrice(ctx, s.db, price); err != nil {
		return nil, err
	}

	// Drop the stale entry so the next read observes the committed write.
	if s.resolverCache != nil {
		s.resolverCache.InvalidateFeaturePrice(featureKey)
	}

	stored, err := s.repo.FindFeaturePrice(ctx, s.db, featureKey)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrPriceNotFound
	}

	s.log.Info("feature price upserted",
		zap.String("feature_key", featureKey),
		zap.Int64("cost_per_unit", stored.CostPerUnit),
		zap.Bool("active", stored.Active),
	)
	return stored, nil
}

func (s *Service) GetModelPrice(ctx context.Context, modelName string) (*domain.ModelPrice, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return nil, domain.ErrInvalidModelName
	}

	if s.resolverCache != nil {
		if cached, ok := s.resolverCache.GetModelPrice(modelName); ok {
			return cached, nil
		}
	}

	price, err := s.repo.FindModelPrice(ctx, s.db, modelName)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, domain.ErrModelNotFound
	}

	if s.resolverCache != nil {
		s.resolverCache.SetModelPrice(modelName, price)
	}
	return price, nil
}

func (s *Service) ListModelPrices(ctx context.Context) ([]domain.ModelPrice, error) {
	return s.repo.ListModelPrices(ctx, s.db)
}

func (s *Service) SetModelPrice(ctx context.Context, req domain.SetModelPriceRequest) (*domain.ModelPrice, error) {
	modelName := strings.TrimSpace(req.ModelName)
	if modelName == "" {
		return nil, domain.ErrInvalidModelName
	}
	if req.InputPricePerMillion < 0 || req.OutputPricePerMillion < 0 {
		return nil, domain.ErrInvalidRate
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	price := &domain.ModelPrice{
		ID:                    s.genID.Generate(),
		ModelName:             modelName,
		InputPricePerMillion:  req.InputPricePerMillion,
		OutputPricePerMillion: req.OutputPricePerMillion,
		Active:                active,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.UpsertModelPrice(ctx, s.db, price); err != nil {
		return nil, err
	}

	if s.resolverCache != nil {
		s.resolverCache.InvalidateModelPrice(modelName)
	}

	stored, err := s.repo.FindModelPrice(ctx, s.db, modelName)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrModelNotFound
	}

	s.log.Info("model price upserted",
		zap.String("model_name", modelName),
		zap.Float64("input_per_million", stored.InputPricePerMillion),
		zap.Float64("output_per_million", stored.OutputPricePerMillion),
	)
	return stored, nil
}
