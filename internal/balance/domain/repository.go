package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the sole sanctioned mutator of credit balances. All mutators
// take the caller's db handle so the engine can bind them into one
// transaction with the matching ledger append.
type Repository interface {
	Get(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Account, error)
	// Ensure creates the account row with a zero balance and an epoch grant
	// timestamp so the first daily grant fires immediately. Existing rows are
	// left untouched.
	Ensure(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time) error
	Increment(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) error
	// Decrement applies a single conditional update and fails with
	// ErrInsufficientFunds without mutating when the balance cannot cover the
	// amount, even under concurrent decrements for the same account.
	Decrement(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) error
	// MarkDailyGrant advances last_daily_grant_at only when the previous grant
	// is at least interval old; reports whether this caller won the window.
	MarkDailyGrant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time, interval time.Duration) (bool, error)
}
