package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prepware/creditengine/internal/aiusage/domain"
	"github.com/prepware/creditengine/internal/aiusage/repository"
	"github.com/prepware/creditengine/internal/clock"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	pricingrepo "github.com/prepware/creditengine/internal/pricing/repository"
	pricingservice "github.com/prepware/creditengine/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUsageService(t *testing.T) (domain.Service, pricingdomain.Service, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pricingdomain.FeaturePrice{},
		&pricingdomain.ModelPrice{},
		&domain.Record{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	pricingSvc := pricingservice.NewService(pricingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  pricingrepo.Provide(),
	})

	usageSvc := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       repository.Provide(),
		PricingSvc: pricingSvc,
		Clock:      fake,
	})

	return usageSvc, pricingSvc, fake, node
}

func TestAppend_ComputesDollarCost(t *testing.T) {
	usageSvc, pricingSvc, _, node := newUsageService(t)
	ctx := context.Background()

	_, err := pricingSvc.SetModelPrice(ctx, pricingdomain.SetModelPriceRequest{
		ModelName:             "gpt-4o-mini",
		InputPricePerMillion:  0.15,
		OutputPricePerMillion: 0.60,
	})
	require.NoError(t, err)

	record, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:    node.Generate(),
		FeatureKey:   "essay_review",
		ModelName:    "gpt-4o-mini",
		InputTokens:  1_000_000,
		OutputTokens: 500_000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.45, record.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(1_500_000), record.TotalTokens)
}

func TestAppend_UnknownModelRecordsZeroCost(t *testing.T) {
	usageSvc, _, _, node := newUsageService(t)
	ctx := context.Background()

	record, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:    node.Generate(),
		FeatureKey:   "essay_review",
		ModelName:    "experimental-model",
		InputTokens:  1000,
		OutputTokens: 200,
	})
	require.NoError(t, err)
	assert.Zero(t, record.TotalCostUSD)
	assert.Equal(t, int64(1200), record.TotalTokens)
}

func TestAppend_Validation(t *testing.T) {
	usageSvc, _, _, node := newUsageService(t)
	ctx := context.Background()

	_, err := usageSvc.Append(ctx, domain.AppendRequest{FeatureKey: "x", ModelName: "m"})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = usageSvc.Append(ctx, domain.AppendRequest{AccountID: node.Generate(), ModelName: "m"})
	require.ErrorIs(t, err, domain.ErrInvalidFeatureKey)

	_, err = usageSvc.Append(ctx, domain.AppendRequest{AccountID: node.Generate(), FeatureKey: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidModelName)

	_, err = usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:   node.Generate(),
		FeatureKey:  "x",
		ModelName:   "m",
		InputTokens: -1,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTokens)
}

func TestFindCorrelated_ExactTraceWins(t *testing.T) {
	usageSvc, _, fake, node := newUsageService(t)
	ctx := context.Background()
	accountID := node.Generate()
	trace := "trace-abc"

	// A nearby record without the trace, then the traced one further away.
	_, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		ModelName:  "m",
	})
	require.NoError(t, err)

	fake.Advance(4 * time.Second)
	traced, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		TraceID:    &trace,
		ModelName:  "m",
	})
	require.NoError(t, err)

	found, err := usageSvc.FindCorrelated(ctx, accountID, "essay_review", fake.Now().Add(-4*time.Second), &trace, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, traced.ID, found.ID)
}

func TestFindCorrelated_ClosestWithinWindow(t *testing.T) {
	usageSvc, _, fake, node := newUsageService(t)
	ctx := context.Background()
	accountID := node.Generate()

	far, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		ModelName:  "m",
	})
	require.NoError(t, err)

	fake.Advance(3 * time.Second)
	near, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		ModelName:  "m",
	})
	require.NoError(t, err)

	approx := fake.Now().Add(1 * time.Second)
	found, err := usageSvc.FindCorrelated(ctx, accountID, "essay_review", approx, nil, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, near.ID, found.ID)
	assert.NotEqual(t, far.ID, found.ID)
}

func TestFindCorrelated_NothingInWindow(t *testing.T) {
	usageSvc, _, fake, node := newUsageService(t)
	ctx := context.Background()
	accountID := node.Generate()

	_, err := usageSvc.Append(ctx, domain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		ModelName:  "m",
	})
	require.NoError(t, err)

	approx := fake.Now().Add(time.Minute)
	found, err := usageSvc.FindCorrelated(ctx, accountID, "essay_review", approx, nil, 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, found)
}
