package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	balancedomain "github.com/prepware/creditengine/internal/balance/domain"
	balancerepo "github.com/prepware/creditengine/internal/balance/repository"
	"github.com/prepware/creditengine/internal/billing/domain"
	"github.com/prepware/creditengine/internal/clock"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/events"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
	ledgerrepo "github.com/prepware/creditengine/internal/ledger/repository"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	pricingrepo "github.com/prepware/creditengine/internal/pricing/repository"
	pricingservice "github.com/prepware/creditengine/internal/pricing/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	billingSvc domain.Service
	pricingSvc pricingdomain.Service
	ledgerRepo ledgerdomain.Repository
	balRepo    balancedomain.Repository
}

func newFixture(t *testing.T, cfg config.BillingConfig) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Serialize writers so concurrent transactions queue instead of failing
	// with a busy error.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&pricingdomain.FeaturePrice{},
		&pricingdomain.ModelPrice{},
		&balancedomain.Account{},
		&ledgerdomain.Transaction{},
		&aiusagedomain.Record{},
		&events.OutboxEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	pricingSvc := pricingservice.NewService(pricingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  pricingrepo.Provide(),
	})

	balRepo := balancerepo.Provide()
	ledRepo := ledgerrepo.Provide()

	billingSvc := NewService(Params{
		DB:          db,
		Log:         log,
		Clock:       fake,
		GenID:       node,
		BalanceRepo: balRepo,
		LedgerRepo:  ledRepo,
		PricingSvc:  pricingSvc,
		BillingCfg:  config.NewBillingConfigHolderFrom(cfg),
		Outbox:      events.NewOutbox(db, log, node),
	})

	return &fixture{
		db:         db,
		node:       node,
		clock:      fake,
		billingSvc: billingSvc,
		pricingSvc: pricingSvc,
		ledgerRepo: ledRepo,
		balRepo:    balRepo,
	}
}

func (f *fixture) setPrice(t *testing.T, key string, cost int64) {
	t.Helper()
	_, err := f.pricingSvc.SetPrice(context.Background(), pricingdomain.SetPriceRequest{
		FeatureKey:  key,
		CostPerUnit: cost,
	})
	require.NoError(t, err)
}

func TestBill_FirstUseGrantsDailyCredits(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	res, err := f.billingSvc.Bill(ctx, domain.BillRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
	})
	require.NoError(t, err)
	assert.True(t, res.GrantApplied)
	assert.Equal(t, int64(2), res.Cost)
	assert.Equal(t, int64(3), res.Balance)
	assert.NotZero(t, res.TransactionID)

	// Ledger carries both the grant and the spend, and sums to the balance.
	sum, err := f.ledgerRepo.SumByAccount(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, res.Balance, sum)

	trx, err := f.ledgerRepo.FindByID(ctx, f.db, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TypeUsage, trx.Type)
	assert.Equal(t, int64(-2), trx.Amount)
}

func TestBill_GrantOncePerWindow(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	first, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.NoError(t, err)
	assert.True(t, first.GrantApplied)

	second, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.NoError(t, err)
	assert.False(t, second.GrantApplied)
	assert.Equal(t, int64(1), second.Balance)

	f.clock.Advance(25 * time.Hour)

	third, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.NoError(t, err)
	assert.True(t, third.GrantApplied)
	assert.Equal(t, int64(4), third.Balance)
}

func TestBill_InsufficientFunds(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "mock_exam", 10)
	ctx := context.Background()
	accountID := f.node.Generate()

	_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "mock_exam"})
	require.ErrorIs(t, err, balancedomain.ErrInsufficientFunds)

	// The failed bill must not leave a usage row or touch the balance.
	account, err := f.balRepo.Get(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), account.Balance)

	sum, err := f.ledgerRepo.SumByAccount(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestBill_MonthlyCapExceeded(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.DailyGrantAmount = 10
	cfg.MonthlyUsageCap = 4
	f := newFixture(t, cfg)
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	for i := 0; i < 2; i++ {
		_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
		require.NoError(t, err)
	}

	_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.ErrorIs(t, err, domain.ErrMonthlyLimitExceeded)

	account, err := f.balRepo.Get(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), account.Balance)
}

func TestBill_FeatureUnavailable(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	ctx := context.Background()
	accountID := f.node.Generate()

	_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "unpriced"})
	require.ErrorIs(t, err, domain.ErrFeatureUnavailable)

	inactive := false
	_, err = f.pricingSvc.SetPrice(ctx, pricingdomain.SetPriceRequest{
		FeatureKey:  "retired_feature",
		CostPerUnit: 1,
		Active:      &inactive,
	})
	require.NoError(t, err)

	_, err = f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "retired_feature"})
	require.ErrorIs(t, err, domain.ErrFeatureUnavailable)
}

func TestBill_ConcurrentSpendsNeverOverdraw(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, balancedomain.ErrInsufficientFunds):
			insufficient++
		}
	}

	// 5 granted credits at 2 per bill: exactly two spends fit.
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, attempts-2, insufficient)

	account, err := f.balRepo.Get(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), account.Balance)

	sum, err := f.ledgerRepo.SumByAccount(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, account.Balance, sum)
}

func TestRefund_RestoresBalanceAndIsIdempotent(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	billed, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.NoError(t, err)

	refunded, err := f.billingSvc.Refund(ctx, domain.RefundRequest{
		AccountID:            accountID,
		BillingTransactionID: &billed.TransactionID,
		Reason:               "scoring failed",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), refunded.Amount)
	assert.Equal(t, int64(5), refunded.Balance)

	_, err = f.billingSvc.Refund(ctx, domain.RefundRequest{
		AccountID:            accountID,
		BillingTransactionID: &billed.TransactionID,
		Reason:               "retry",
	})
	require.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	// The duplicate attempt must not credit twice.
	account, err := f.balRepo.Get(ctx, f.db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), account.Balance)
}

func TestRefund_RejectsForeignTransaction(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()

	owner := f.node.Generate()
	other := f.node.Generate()

	billed, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: owner, FeatureKey: "essay_review"})
	require.NoError(t, err)

	_, err = f.billingSvc.Refund(ctx, domain.RefundRequest{
		AccountID:            other,
		BillingTransactionID: &billed.TransactionID,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrNotFound)
}

func TestRefund_FallbackToFeaturePrice(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	f.setPrice(t, "essay_review", 2)
	ctx := context.Background()
	accountID := f.node.Generate()

	_, err := f.billingSvc.Bill(ctx, domain.BillRequest{AccountID: accountID, FeatureKey: "essay_review"})
	require.NoError(t, err)

	refunded, err := f.billingSvc.Refund(ctx, domain.RefundRequest{
		AccountID:  accountID,
		FeatureKey: "essay_review",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), refunded.Amount)
	assert.Equal(t, int64(5), refunded.Balance)
}

func TestReward_TypeAndAmountValidation(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	ctx := context.Background()
	accountID := f.node.Generate()

	_, err := f.billingSvc.Reward(ctx, domain.RewardRequest{
		AccountID: accountID,
		Type:      ledgerdomain.TypeUsage,
		Amount:    5,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidType)

	_, err = f.billingSvc.Reward(ctx, domain.RewardRequest{
		AccountID: accountID,
		Type:      ledgerdomain.TypeGiftCode,
		Amount:    0,
	})
	require.ErrorIs(t, err, balancedomain.ErrInvalidAmount)

	granter := f.node.Generate()
	res, err := f.billingSvc.Reward(ctx, domain.RewardRequest{
		AccountID:   accountID,
		Type:        ledgerdomain.TypeGiftCode,
		Amount:      20,
		GrantedBy:   &granter,
		Description: "promo code",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Balance)

	trx, err := f.ledgerRepo.FindByID(ctx, f.db, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TypeGiftCode, trx.Type)
	require.NotNil(t, trx.GrantedBy)
	assert.Equal(t, granter, *trx.GrantedBy)
}

func TestBalance_AppliesLazyGrant(t *testing.T) {
	f := newFixture(t, config.DefaultBillingConfig())
	ctx := context.Background()
	accountID := f.node.Generate()

	res, err := f.billingSvc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, res.GrantApplied)
	assert.Equal(t, int64(5), res.Balance)
	assert.WithinDuration(t, f.clock.Now().Add(24*time.Hour), res.NextGrantAt, time.Second)

	again, err := f.billingSvc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, again.GrantApplied)
	assert.Equal(t, int64(5), again.Balance)
}
