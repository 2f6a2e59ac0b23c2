package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/aiusage/domain"
	"github.com/prepware/creditengine/internal/clock"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCorrelationWindow = 5 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	PricingSvc pricingdomain.Service
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	pricingSvc pricingdomain.Service
	clock      clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("aiusage.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		pricingSvc: p.PricingSvc,
		clock:      p.Clock,
	}
}

func (s *Service) Append(ctx context.Context, req domain.AppendRequest) (*domain.Record, error) {
	if req.AccountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	featureKey := strings.TrimSpace(req.FeatureKey)
	if featureKey == "" {
		return nil, domain.ErrInvalidFeatureKey
	}
	modelName := strings.TrimSpace(req.ModelName)
	if modelName == "" {
		return nil, domain.ErrInvalidModelName
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 || req.TotalTokens < 0 {
		return nil, domain.ErrInvalidTokens
	}

	totalTokens := req.TotalTokens
	if totalTokens == 0 {
		totalTokens = req.InputTokens + req.OutputTokens
	}

	costUSD := s.computeCostUSD(ctx, modelName, req.InputTokens, req.OutputTokens)

	record := &domain.Record{
		ID:             s.genID.Generate(),
		AccountID:      req.AccountID,
		FeatureKey:     featureKey,
		TraceID:        normalizeTraceID(req.TraceID),
		ModelName:      modelName,
		InputTokens:    req.InputTokens,
		OutputTokens:   req.OutputTokens,
		TotalTokens:    totalTokens,
		TotalCostUSD:   costUSD,
		CreditsCharged: req.CreditsCharged,
		DurationMs:     req.DurationMs,
		CreatedAt:      s.clock.Now(),
	}

	if err := s.repo.Append(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

// computeCostUSD turns token counts into dollars at the catalog rate. A
// missing model price must not drop telemetry, so the record lands with zero
// cost and a warn line for the operator.
func (s *Service) computeCostUSD(ctx context.Context, modelName string, inputTokens, outputTokens int64) float64 {
	price, err := s.pricingSvc.GetModelPrice(ctx, modelName)
	if err != nil {
		if errors.Is(err, pricingdomain.ErrModelNotFound) {
			s.log.Warn("no price for model, recording zero cost", zap.String("model_name", modelName))
			return 0
		}
		s.log.Warn("model price lookup failed, recording zero cost",
			zap.String("model_name", modelName),
			zap.Error(err),
		)
		return 0
	}
	return price.CostUSD(inputTokens, outputTokens)
}

func (s *Service) FindCorrelated(ctx context.Context, accountID snowflake.ID, featureKey string, approxTS time.Time, traceID *string, window time.Duration) (*domain.Record, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	featureKey = strings.TrimSpace(featureKey)
	if featureKey == "" {
		return nil, domain.ErrInvalidFeatureKey
	}
	if window <= 0 {
		window = defaultCorrelationWindow
	}

	if trace := normalizeTraceID(traceID); trace != nil {
		record, err := s.repo.FindByTrace(ctx, s.db, accountID, featureKey, *trace)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}

	// Fallback: the billing call and the AI call race within one request
	// lifecycle, so the closest record inside the window is plausibly part of
	// the same user action.
	from := approxTS.Add(-window)
	to := approxTS.Add(window)
	records, err := s.repo.ListWithinWindow(ctx, s.db, accountID, featureKey, from, to)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	closest := records[0]
	closestDelta := absDuration(closest.CreatedAt.Sub(approxTS))
	for _, record := range records[1:] {
		delta := absDuration(record.CreatedAt.Sub(approxTS))
		if delta < closestDelta {
			closest = record
			closestDelta = delta
		}
	}
	return &closest, nil
}

func (s *Service) CostSummary(ctx context.Context, from, to time.Time) (*domain.CostSummary, error) {
	return s.repo.CostSummary(ctx, s.db, from, to)
}

func (s *Service) CostByFeature(ctx context.Context, from, to time.Time) ([]domain.FeatureCost, error) {
	return s.repo.CostByFeature(ctx, s.db, from, to)
}

func (s *Service) CostByModel(ctx context.Context, from, to time.Time) ([]domain.ModelCost, error) {
	return s.repo.CostByModel(ctx, s.db, from, to)
}

func (s *Service) DailyTrend(ctx context.Context, from, to time.Time) ([]domain.DailyCost, error) {
	return s.repo.DailyTrend(ctx, s.db, from, to)
}

func normalizeTraceID(traceID *string) *string {
	if traceID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*traceID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
