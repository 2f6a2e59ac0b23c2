package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/balance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_accounts (
			account_id, balance, last_daily_grant_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO NOTHING`,
		accountID,
		0,
		time.Unix(0, 0).UTC(),
		now.UTC(),
		now.UTC(),
	).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_accounts
		 SET balance = balance + ?, updated_at = ?
		 WHERE account_id = ?`,
		amount,
		now.UTC(),
		accountID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *repo) Decrement(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	// Single conditional update: the balance check and the decrement are one
	// statement, so two concurrent charges can never both drain the same
	// credits.
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_accounts
		 SET balance = balance - ?, updated_at = ?
		 WHERE account_id = ? AND balance >= ?`,
		amount,
		now.UTC(),
		accountID,
		amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, db, accountID); err != nil {
			return err
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

func (r *repo) MarkDailyGrant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time, interval time.Duration) (bool, error) {
	cutoff := now.UTC().Add(-interval)
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_accounts
		 SET last_daily_grant_at = ?, updated_at = ?
		 WHERE account_id = ? AND last_daily_grant_at <= ?`,
		now.UTC(),
		now.UTC(),
		accountID,
		cutoff,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
