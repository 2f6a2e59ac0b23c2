package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	aiusagerepo "github.com/prepware/creditengine/internal/aiusage/repository"
	aiusageservice "github.com/prepware/creditengine/internal/aiusage/service"
	balancedomain "github.com/prepware/creditengine/internal/balance/domain"
	balancerepo "github.com/prepware/creditengine/internal/balance/repository"
	"github.com/prepware/creditengine/internal/clock"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/ledger/domain"
	ledgerrepo "github.com/prepware/creditengine/internal/ledger/repository"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	pricingrepo "github.com/prepware/creditengine/internal/pricing/repository"
	pricingservice "github.com/prepware/creditengine/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	svc        domain.Service
	repo       domain.Repository
	balRepo    balancedomain.Repository
	aiUsageSvc aiusagedomain.Service
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pricingdomain.FeaturePrice{},
		&pricingdomain.ModelPrice{},
		&balancedomain.Account{},
		&domain.Transaction{},
		&aiusagedomain.Record{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	pricingSvc := pricingservice.NewService(pricingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  pricingrepo.Provide(),
	})

	usageSvc := aiusageservice.NewService(aiusageservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       aiusagerepo.Provide(),
		PricingSvc: pricingSvc,
		Clock:      fake,
	})

	repo := ledgerrepo.Provide()
	balRepo := balancerepo.Provide()

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		Repo:        repo,
		BalanceRepo: balRepo,
		AIUsageSvc:  usageSvc,
		BillingCfg:  config.NewBillingConfigHolderFrom(config.DefaultBillingConfig()),
	})

	return &ledgerFixture{
		db:         db,
		node:       node,
		clock:      fake,
		svc:        svc,
		repo:       repo,
		balRepo:    balRepo,
		aiUsageSvc: usageSvc,
	}
}

func (f *ledgerFixture) append(t *testing.T, accountID snowflake.ID, amount int64, trxType domain.TransactionType, at time.Time) *domain.Transaction {
	t.Helper()
	featureKey := "essay_review"
	trx := &domain.Transaction{
		ID:          f.node.Generate(),
		AccountID:   accountID,
		Amount:      amount,
		Type:        trxType,
		Description: string(trxType),
		CreatedAt:   at,
	}
	if trxType == domain.TypeUsage || trxType == domain.TypeRefund {
		trx.FeatureKey = &featureKey
	}
	require.NoError(t, f.repo.Append(context.Background(), f.db, trx))
	return trx
}

func TestHistory_PaginatesNewestFirst(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()

	base := f.clock.Now()
	for i := 0; i < 5; i++ {
		f.append(t, accountID, 1, domain.TypeReward, base.Add(time.Duration(i)*time.Minute))
	}

	first, err := f.svc.History(ctx, domain.HistoryRequest{AccountID: accountID, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 2)
	assert.True(t, first.PageInfo.HasMore)
	assert.True(t, first.Transactions[0].CreatedAt.After(first.Transactions[1].CreatedAt))

	second, err := f.svc.History(ctx, domain.HistoryRequest{
		AccountID: accountID,
		PageSize:  2,
		PageToken: first.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 2)
	assert.True(t, second.PageInfo.HasMore)

	third, err := f.svc.History(ctx, domain.HistoryRequest{
		AccountID: accountID,
		PageSize:  2,
		PageToken: second.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, third.Transactions, 1)
	assert.False(t, third.PageInfo.HasMore)

	// No overlap between pages.
	seen := map[snowflake.ID]bool{}
	for _, page := range [][]domain.Transaction{first.Transactions, second.Transactions, third.Transactions} {
		for _, trx := range page {
			assert.False(t, seen[trx.ID])
			seen[trx.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestHistory_FiltersByType(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()
	now := f.clock.Now()

	f.append(t, accountID, 5, domain.TypeDailyGrant, now)
	f.append(t, accountID, -2, domain.TypeUsage, now.Add(time.Minute))
	f.append(t, accountID, 2, domain.TypeRefund, now.Add(2*time.Minute))

	usageType := domain.TypeUsage
	resp, err := f.svc.History(ctx, domain.HistoryRequest{AccountID: accountID, Type: &usageType})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, domain.TypeUsage, resp.Transactions[0].Type)
}

func TestAppend_RejectsWrongSign(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()

	err := f.repo.Append(ctx, f.db, &domain.Transaction{
		ID:        f.node.Generate(),
		AccountID: accountID,
		Amount:    2,
		Type:      domain.TypeUsage,
		CreatedAt: f.clock.Now(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidSign)

	err = f.repo.Append(ctx, f.db, &domain.Transaction{
		ID:        f.node.Generate(),
		AccountID: accountID,
		Amount:    -5,
		Type:      domain.TypeDailyGrant,
		CreatedAt: f.clock.Now(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidSign)
}

func TestMonthlyUsageSum_CountsOnlyUsageSinceMonthStart(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()
	now := f.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	// Last month's spend must not count.
	f.append(t, accountID, -4, domain.TypeUsage, monthStart.Add(-time.Hour))
	f.append(t, accountID, -2, domain.TypeUsage, now)
	f.append(t, accountID, -3, domain.TypeUsage, now.Add(time.Minute))
	f.append(t, accountID, 5, domain.TypeDailyGrant, now)
	f.append(t, accountID, 2, domain.TypeRefund, now.Add(2*time.Minute))

	sum, err := f.repo.MonthlyUsageSum(ctx, f.db, accountID, monthStart)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestReceipt_CorrelatesUsageRecord(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()
	trace := "trace-xyz"

	record, err := f.aiUsageSvc.Append(ctx, aiusagedomain.AppendRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
		TraceID:    &trace,
		ModelName:  "m",
	})
	require.NoError(t, err)

	featureKey := "essay_review"
	trx := &domain.Transaction{
		ID:         f.node.Generate(),
		AccountID:  accountID,
		Amount:     -2,
		Type:       domain.TypeUsage,
		FeatureKey: &featureKey,
		TraceID:    &trace,
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.repo.Append(ctx, f.db, trx))

	receipt, err := f.svc.Receipt(ctx, trx.ID)
	require.NoError(t, err)
	require.NotNil(t, receipt.AIUsage)
	assert.Equal(t, record.ID, receipt.AIUsage.ID)
}

func TestReceipt_WithoutFeatureSkipsCorrelation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()

	trx := f.append(t, accountID, 5, domain.TypeDailyGrant, f.clock.Now())

	receipt, err := f.svc.Receipt(ctx, trx.ID)
	require.NoError(t, err)
	assert.Nil(t, receipt.AIUsage)
	assert.Equal(t, trx.ID, receipt.Transaction.ID)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	accountID := f.node.Generate()
	now := f.clock.Now()

	require.NoError(t, f.balRepo.Ensure(ctx, f.db, accountID, now))
	require.NoError(t, f.balRepo.Increment(ctx, f.db, accountID, 5, now))
	f.append(t, accountID, 5, domain.TypeDailyGrant, now)

	res, err := f.svc.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, res.Consistent)
	assert.Equal(t, int64(5), res.Balance)
	assert.Equal(t, int64(5), res.LedgerSum)

	// An out-of-band balance write breaks the invariant.
	require.NoError(t, f.balRepo.Increment(ctx, f.db, accountID, 1, now))

	res, err = f.svc.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, res.Consistent)
}
