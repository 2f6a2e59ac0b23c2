package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/ledger/domain"
	"github.com/prepware/creditengine/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, trx *domain.Transaction) error {
	if trx == nil || trx.AccountID == 0 {
		return domain.ErrInvalidAccount
	}
	if !trx.Type.Valid() {
		return domain.ErrInvalidType
	}
	if err := trx.ValidateSign(); err != nil {
		return err
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, account_id, amount, transaction_type, feature_key,
			trace_id, attempt_id, description, granted_by, refund_of, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trx.ID,
		trx.AccountID,
		trx.Amount,
		trx.Type,
		trx.FeatureKey,
		trx.TraceID,
		trx.AttemptID,
		trx.Description,
		trx.GrantedBy,
		trx.RefundOf,
		trx.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var trx domain.Transaction
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&trx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &trx, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.ListFilter) ([]*domain.Transaction, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("account_id = ?", accountID)

	if filter.Type != nil {
		stmt = stmt.Where("transaction_type = ?", *filter.Type)
	}

	if filter.PageToken != "" {
		cursor, err := pagination.DecodeCursor(filter.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			createdAt, createdAt, cursorID,
		)
	}

	var items []*domain.Transaction
	// Fetch one extra row so the caller can tell whether more pages exist.
	err := stmt.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE account_id = ?`,
		accountID,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *repo) MonthlyUsageSum(ctx context.Context, db *gorm.DB, accountID snowflake.ID, monthStart time.Time) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(-amount), 0)
		 FROM credit_transactions
		 WHERE account_id = ? AND transaction_type = ? AND created_at >= ?`,
		accountID,
		domain.TypeUsage,
		monthStart.UTC(),
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}
