package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBillingConfig(t *testing.T) {
	valid := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(valid))

	// Zero grant is allowed: it disables the free tier without breaking billing.
	zeroGrant := valid
	zeroGrant.DailyGrantAmount = 0
	require.NoError(t, validateBillingConfig(zeroGrant))

	cases := []struct {
		name   string
		mutate func(*BillingConfig)
	}{
		{"negative grant amount", func(c *BillingConfig) { c.DailyGrantAmount = -1 }},
		{"zero grant interval", func(c *BillingConfig) { c.DailyGrantInterval = 0 }},
		{"zero monthly cap", func(c *BillingConfig) { c.MonthlyUsageCap = 0 }},
		{"negative correlation window", func(c *BillingConfig) { c.CorrelationWindow = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			tc.mutate(&cfg)
			assert.Error(t, validateBillingConfig(cfg))
		})
	}
}

func TestBillingConfigHolder_FixedValue(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.MonthlyUsageCap = 42

	holder := NewBillingConfigHolderFrom(cfg)
	assert.Equal(t, int64(42), holder.Get().MonthlyUsageCap)
}
