package cache

import (
	"strings"
	"time"

	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
)

const (
	defaultFeaturePriceTTL = 30 * time.Second
	defaultModelPriceTTL   = 10 * time.Minute
)

// PriceResolverCache stores hot-path pricing lookups for the bill path.
// Writes through the pricing service invalidate the matching entry so reads
// stay read-your-writes on a single node.
type PriceResolverCache interface {
	GetFeaturePrice(featureKey string) (*pricingdomain.FeaturePrice, bool)
	SetFeaturePrice(featureKey string, price *pricingdomain.FeaturePrice)
	InvalidateFeaturePrice(featureKey string)
	GetModelPrice(modelName string) (*pricingdomain.ModelPrice, bool)
	SetModelPrice(modelName string, price *pricingdomain.ModelPrice)
	InvalidateModelPrice(modelName string)
}

type priceResolverCache struct {
	features   Cache[string, *pricingdomain.FeaturePrice]
	models     Cache[string, *pricingdomain.ModelPrice]
	featureTTL time.Duration
	modelTTL   time.Duration
}

// NewPriceResolverCache returns an in-memory cache tuned for billing lookups.
func NewPriceResolverCache() PriceResolverCache {
	return &priceResolverCache{
		features:   NewTTLCache[string, *pricingdomain.FeaturePrice](),
		models:     NewTTLCache[string, *pricingdomain.ModelPrice](),
		featureTTL: defaultFeaturePriceTTL,
		modelTTL:   defaultModelPriceTTL,
	}
}

func (c *priceResolverCache) GetFeaturePrice(featureKey string) (*pricingdomain.FeaturePrice, bool) {
	return c.features.Get(cacheKey(featureKey))
}

func (c *priceResolverCache) SetFeaturePrice(featureKey string, price *pricingdomain.FeaturePrice) {
	if price == nil {
		return
	}
	c.features.Set(cacheKey(featureKey), price, c.featureTTL)
}

func (c *priceResolverCache) InvalidateFeaturePrice(featureKey string) {
	c.features.Delete(cacheKey(featureKey))
}

func (c *priceResolverCache) GetModelPrice(modelName string) (*pricingdomain.ModelPrice, bool) {
	return c.models.Get(cacheKey(modelName))
}

func (c *priceResolverCache) SetModelPrice(modelName string, price *pricingdomain.ModelPrice) {
	if price == nil {
		return
	}
	c.models.Set(cacheKey(modelName), price, c.modelTTL)
}

func (c *priceResolverCache) InvalidateModelPrice(modelName string) {
	c.models.Delete(cacheKey(modelName))
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}
