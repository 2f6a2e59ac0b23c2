package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/prepware/creditengine/internal/balance/domain"
	"github.com/prepware/creditengine/internal/billing/domain"
	"github.com/prepware/creditengine/internal/clock"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/events"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
	"github.com/prepware/creditengine/internal/observability"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	"github.com/prepware/creditengine/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	BalanceRepo balancedomain.Repository
	LedgerRepo  ledgerdomain.Repository
	PricingSvc  pricingdomain.Service
	BillingCfg  *config.BillingConfigHolder
	Outbox      *events.Outbox         `optional:"true"`
	Metrics     *observability.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	balanceRepo balancedomain.Repository
	ledgerRepo  ledgerdomain.Repository
	pricingSvc  pricingdomain.Service
	billingCfg  *config.BillingConfigHolder
	outbox      *events.Outbox
	metrics     *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		balanceRepo: p.BalanceRepo,
		ledgerRepo:  p.LedgerRepo,
		pricingSvc:  p.PricingSvc,
		billingCfg:  p.BillingCfg,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
	}
}

func (s *Service) Bill(ctx context.Context, req domain.BillRequest) (result *domain.BillResult, err error) {
	defer func() { s.recordOp("bill", err) }()

	if req.AccountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if req.FeatureKey == "" {
		return nil, pricingdomain.ErrInvalidFeatureKey
	}

	now := s.clock.Now().UTC()
	cfg := s.billingCfg.Get()

	granted, err := s.ensureAccount(ctx, req.AccountID, now, cfg)
	if err != nil {
		return nil, err
	}

	price, err := s.pricingSvc.GetPrice(ctx, req.FeatureKey)
	if err != nil {
		if errors.Is(err, pricingdomain.ErrPriceNotFound) {
			return nil, domain.ErrFeatureUnavailable
		}
		return nil, err
	}
	if !price.Active {
		return nil, domain.ErrFeatureUnavailable
	}

	cost := price.CostPerUnit
	if cost <= 0 {
		// Free feature: nothing to deduct, nothing to record.
		account, err := s.balanceRepo.Get(ctx, s.db, req.AccountID)
		if err != nil {
			return nil, err
		}
		return &domain.BillResult{Balance: account.Balance, GrantApplied: granted}, nil
	}

	featureKey := req.FeatureKey
	result = &domain.BillResult{Cost: cost, GrantApplied: granted}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		spent, err := s.ledgerRepo.MonthlyUsageSum(ctx, tx, req.AccountID, monthStart(now))
		if err != nil {
			return err
		}
		if spent+cost > cfg.MonthlyUsageCap {
			return domain.ErrMonthlyLimitExceeded
		}

		if err := s.balanceRepo.Decrement(ctx, tx, req.AccountID, cost, now); err != nil {
			return err
		}

		trx := &ledgerdomain.Transaction{
			ID:          s.genID.Generate(),
			AccountID:   req.AccountID,
			Amount:      -cost,
			Type:        ledgerdomain.TypeUsage,
			FeatureKey:  &featureKey,
			TraceID:     req.TraceID,
			AttemptID:   req.AttemptID,
			Description: defaultDescription(req.Description, "usage: "+featureKey),
			CreatedAt:   now,
		}
		if err := s.ledgerRepo.Append(ctx, tx, trx); err != nil {
			return err
		}
		result.TransactionID = trx.ID

		account, err := s.balanceRepo.Get(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		result.Balance = account.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCreditsSpent(cost)
	}
	s.log.Info("billed",
		zap.String("account_id", req.AccountID.String()),
		zap.String("feature_key", featureKey),
		zap.Int64("cost", cost),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (result *domain.RefundResult, err error) {
	defer func() { s.recordOp("refund", err) }()

	if req.AccountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}

	now := s.clock.Now().UTC()

	var amount int64
	var featureKey *string
	var refundOf *snowflake.ID

	if req.BillingTransactionID != nil {
		src, err := s.ledgerRepo.FindByID(ctx, s.db, *req.BillingTransactionID)
		if err != nil {
			return nil, err
		}
		if src.AccountID != req.AccountID || src.Type != ledgerdomain.TypeUsage {
			return nil, ledgerdomain.ErrNotFound
		}
		amount = -src.Amount
		featureKey = src.FeatureKey
		refundOf = &src.ID
	} else {
		if req.FeatureKey == "" {
			return nil, pricingdomain.ErrInvalidFeatureKey
		}
		price, err := s.pricingSvc.GetPrice(ctx, req.FeatureKey)
		if err != nil {
			if errors.Is(err, pricingdomain.ErrPriceNotFound) {
				return nil, domain.ErrFeatureUnavailable
			}
			return nil, err
		}
		amount = price.CostPerUnit
		key := req.FeatureKey
		featureKey = &key
	}

	if amount <= 0 {
		account, err := s.balanceRepo.Get(ctx, s.db, req.AccountID)
		if err != nil {
			return nil, err
		}
		return &domain.RefundResult{Balance: account.Balance}, nil
	}

	result = &domain.RefundResult{Amount: amount}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.balanceRepo.Increment(ctx, tx, req.AccountID, amount, now); err != nil {
			return err
		}

		trx := &ledgerdomain.Transaction{
			ID:          s.genID.Generate(),
			AccountID:   req.AccountID,
			Amount:      amount,
			Type:        ledgerdomain.TypeRefund,
			FeatureKey:  featureKey,
			TraceID:     req.TraceID,
			AttemptID:   req.AttemptID,
			RefundOf:    refundOf,
			Description: defaultDescription(req.Reason, "refund for failed operation"),
			CreatedAt:   now,
		}
		if err := s.ledgerRepo.Append(ctx, tx, trx); err != nil {
			if refundOf != nil && db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyRefunded
			}
			return err
		}
		result.TransactionID = trx.ID

		account, err := s.balanceRepo.Get(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		result.Balance = account.Balance

		s.publishTx(ctx, tx, events.Event{
			AccountID: req.AccountID,
			Type:      events.EventCreditRefunded,
			DedupeKey: "txn:" + trx.ID.String(),
			Payload: map[string]any{
				"transaction_id": trx.ID.String(),
				"amount":         amount,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("refunded",
		zap.String("account_id", req.AccountID.String()),
		zap.Int64("amount", amount),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}

func (s *Service) Reward(ctx context.Context, req domain.RewardRequest) (result *domain.RewardResult, err error) {
	defer func() { s.recordOp("reward", err) }()

	if req.AccountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if !req.Type.RewardFamily() {
		return nil, ledgerdomain.ErrInvalidType
	}
	if req.Amount <= 0 {
		return nil, balancedomain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	if err := s.balanceRepo.Ensure(ctx, s.db, req.AccountID, now); err != nil {
		return nil, err
	}

	result = &domain.RewardResult{Amount: req.Amount}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.balanceRepo.Increment(ctx, tx, req.AccountID, req.Amount, now); err != nil {
			return err
		}

		trx := &ledgerdomain.Transaction{
			ID:          s.genID.Generate(),
			AccountID:   req.AccountID,
			Amount:      req.Amount,
			Type:        req.Type,
			GrantedBy:   req.GrantedBy,
			Description: defaultDescription(req.Description, string(req.Type)),
			CreatedAt:   now,
		}
		if err := s.ledgerRepo.Append(ctx, tx, trx); err != nil {
			return err
		}
		result.TransactionID = trx.ID

		account, err := s.balanceRepo.Get(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		result.Balance = account.Balance

		s.publishTx(ctx, tx, events.Event{
			AccountID: req.AccountID,
			Type:      events.EventCreditRewarded,
			DedupeKey: "txn:" + trx.ID.String(),
			Payload: map[string]any{
				"transaction_id": trx.ID.String(),
				"reward_type":    string(req.Type),
				"amount":         req.Amount,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rewarded",
		zap.String("account_id", req.AccountID.String()),
		zap.String("reward_type", string(req.Type)),
		zap.Int64("amount", req.Amount),
	)
	return result, nil
}

func (s *Service) Balance(ctx context.Context, accountID snowflake.ID) (result *domain.BalanceResult, err error) {
	defer func() { s.recordOp("balance", err) }()

	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}

	now := s.clock.Now().UTC()
	cfg := s.billingCfg.Get()

	granted, err := s.ensureAccount(ctx, accountID, now, cfg)
	if err != nil {
		return nil, err
	}

	account, err := s.balanceRepo.Get(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	return &domain.BalanceResult{
		AccountID:    accountID,
		Balance:      account.Balance,
		GrantApplied: granted,
		NextGrantAt:  account.LastDailyGrantAt.Add(cfg.DailyGrantInterval),
	}, nil
}

// ensureAccount creates the account row if missing and applies the lazy daily
// grant. The grant rides a conditional timestamp update, so concurrent calls
// within one window produce exactly one grant.
func (s *Service) ensureAccount(ctx context.Context, accountID snowflake.ID, now time.Time, cfg config.BillingConfig) (bool, error) {
	if err := s.balanceRepo.Ensure(ctx, s.db, accountID, now); err != nil {
		return false, err
	}
	if cfg.DailyGrantAmount <= 0 {
		return false, nil
	}

	var granted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.balanceRepo.MarkDailyGrant(ctx, tx, accountID, now, cfg.DailyGrantInterval)
		if err != nil || !won {
			return err
		}

		if err := s.balanceRepo.Increment(ctx, tx, accountID, cfg.DailyGrantAmount, now); err != nil {
			return err
		}

		trx := &ledgerdomain.Transaction{
			ID:          s.genID.Generate(),
			AccountID:   accountID,
			Amount:      cfg.DailyGrantAmount,
			Type:        ledgerdomain.TypeDailyGrant,
			Description: "daily free credits",
			CreatedAt:   now,
		}
		if err := s.ledgerRepo.Append(ctx, tx, trx); err != nil {
			return err
		}

		s.publishTx(ctx, tx, events.Event{
			AccountID: accountID,
			Type:      events.EventCreditGranted,
			DedupeKey: "txn:" + trx.ID.String(),
			Payload: map[string]any{
				"transaction_id": trx.ID.String(),
				"amount":         cfg.DailyGrantAmount,
			},
		})
		granted = true
		return nil
	})
	return granted, err
}

// publishTx enqueues best-effort. A failed enqueue is logged, never surfaced;
// notifications must not fail billing.
func (s *Service) publishTx(ctx context.Context, tx *gorm.DB, event events.Event) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.PublishTx(ctx, tx, event); err != nil {
		s.log.Warn("event enqueue failed",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
}

func (s *Service) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	s.metrics.RecordBillingOp(op, outcome)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, balancedomain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrMonthlyLimitExceeded):
		return "monthly_limit"
	case errors.Is(err, domain.ErrFeatureUnavailable):
		return "feature_unavailable"
	case errors.Is(err, domain.ErrAlreadyRefunded):
		return "already_refunded"
	default:
		return "error"
	}
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func defaultDescription(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}
