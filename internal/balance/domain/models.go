package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account holds the prepaid credit balance for one platform user. Owned
// exclusively by the billing engine; callers never write balance directly.
// Invariant: Balance >= 0 at all times.
type Account struct {
	AccountID        snowflake.ID `gorm:"primaryKey"`
	Balance          int64        `gorm:"not null;default:0"`
	LastDailyGrantAt time.Time    `gorm:"not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "credit_accounts" }

var (
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidAmount     = errors.New("invalid_amount")
)
