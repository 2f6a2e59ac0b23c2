package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	balancedomain "github.com/prepware/creditengine/internal/balance/domain"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/ledger/domain"
	"github.com/prepware/creditengine/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	BalanceRepo balancedomain.Repository
	AIUsageSvc  aiusagedomain.Service
	BillingCfg  *config.BillingConfigHolder
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	balanceRepo balancedomain.Repository
	aiUsageSvc  aiusagedomain.Service
	billingCfg  *config.BillingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		repo:        p.Repo,
		balanceRepo: p.BalanceRepo,
		aiUsageSvc:  p.AIUsageSvc,
		billingCfg:  p.BillingCfg,
	}
}

func (s *Service) History(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResponse, error) {
	if req.AccountID == 0 {
		return domain.HistoryResponse{}, domain.ErrInvalidAccount
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	items, err := s.repo.ListByAccount(ctx, s.db, req.AccountID, domain.ListFilter{
		Type:      req.Type,
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.HistoryResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(trx *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        trx.ID.String(),
			CreatedAt: trx.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	transactions := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		transactions = append(transactions, *item)
	}

	resp := domain.HistoryResponse{Transactions: transactions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListRecent(ctx, s.db, limit)
}

func (s *Service) Receipt(ctx context.Context, transactionID snowflake.ID) (*domain.Receipt, error) {
	trx, err := s.repo.FindByID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}

	receipt := &domain.Receipt{Transaction: *trx}

	// Only spend and compensation rows have a feature to correlate against.
	if trx.FeatureKey == nil {
		return receipt, nil
	}

	window := s.billingCfg.Get().CorrelationWindow
	record, err := s.aiUsageSvc.FindCorrelated(ctx, trx.AccountID, *trx.FeatureKey, trx.CreatedAt, trx.TraceID, window)
	if err != nil {
		s.log.Warn("receipt correlation failed",
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err),
		)
		return receipt, nil
	}
	receipt.AIUsage = record
	return receipt, nil
}

func (s *Service) Reconcile(ctx context.Context, accountID snowflake.ID) (*domain.Reconciliation, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	account, err := s.balanceRepo.Get(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	sum, err := s.repo.SumByAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	result := &domain.Reconciliation{
		AccountID:  accountID,
		Balance:    account.Balance,
		LedgerSum:  sum,
		Consistent: account.Balance == sum,
	}
	if !result.Consistent {
		s.log.Error("ledger drift detected",
			zap.String("account_id", accountID.String()),
			zap.Int64("balance", account.Balance),
			zap.Int64("ledger_sum", sum),
		)
	}
	return result, nil
}
