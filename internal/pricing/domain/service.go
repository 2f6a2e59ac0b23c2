package domain

import (
	"context"
	"errors"
)

type Service interface {
	// GetPrice returns the feature price regardless of active state; billing
	// decides what an inactive price means.
	GetPrice(ctx context.Context, featureKey string) (*FeaturePrice, error)
	ListPrices(ctx context.Context) ([]FeaturePrice, error)
	// SetPrice is an idempotent upsert by feature key. A read immediately
	// following a write observes the new value.
	SetPrice(ctx context.Context, req SetPriceRequest) (*FeaturePrice, error)

	GetModelPrice(ctx context.Context, modelName string) (*ModelPrice, error)
	ListModelPrices(ctx context.Context) ([]ModelPrice, error)
	SetModelPrice(ctx context.Context, req SetModelPriceRequest) (*ModelPrice, error)
}

type SetPriceRequest struct {
	FeatureKey  string `json:"feature_key"`
	CostPerUnit int64  `json:"cost_per_unit"`
	Active      *bool  `json:"active"`
	Description string `json:"description"`
}

type SetModelPriceRequest struct {
	ModelName             string  `json:"model_name"`
	InputPricePerMillion  float64 `json:"input_price_per_million"`
	OutputPricePerMillion float64 `json:"output_price_per_million"`
	Active                *bool   `json:"active"`
}

var (
	ErrInvalidFeatureKey = errors.New("invalid_feature_key")
	ErrInvalidCost       = errors.New("invalid_cost")
	ErrInvalidModelName  = errors.New("invalid_model_name")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrPriceNotFound     = errors.New("price_not_found")
	ErrModelNotFound     = errors.New("model_price_not_found")
)
