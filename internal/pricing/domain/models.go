package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FeaturePrice is the credit cost of one use of a billable feature.
// Read-heavy on the bill path, admin-writable.
type FeaturePrice struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	FeatureKey  string       `json:"feature_key" gorm:"type:text;not null;uniqueIndex:ux_feature_prices_key"`
	CostPerUnit int64        `json:"cost_per_unit" gorm:"not null"`
	Active      bool         `json:"active" gorm:"not null;default:true"`
	Description string       `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FeaturePrice) TableName() string { return "feature_prices" }

// ModelPrice is the $/token rate of an AI model, used to turn token counts
// into dollar cost on usage records.
type ModelPrice struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	ModelName             string       `json:"model_name" gorm:"type:text;not null;uniqueIndex:ux_model_prices_name"`
	InputPricePerMillion  float64      `json:"input_price_per_million" gorm:"not null"`
	OutputPricePerMillion float64      `json:"output_price_per_million" gorm:"not null"`
	Active                bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ModelPrice) TableName() string { return "model_prices" }

// CostUSD converts token counts into dollar cost at this model's rates.
func (p ModelPrice) CostUSD(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.InputPricePerMillion +
		float64(outputTokens)/1_000_000*p.OutputPricePerMillion
}
