package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType tags every balance-affecting event for audit and reporting.
type TransactionType string

const (
	// Free replenishment applied lazily at most once per grant window.
	TypeDailyGrant TransactionType = "daily_grant"
	// Credits spent on one use of a paid feature. The only negative type.
	TypeUsage TransactionType = "usage"
	// Compensation for a billed-but-failed downstream operation.
	TypeRefund TransactionType = "refund"

	// Reward family: same increment primitive, different audit tag.
	TypeReward       TransactionType = "reward"
	TypeGiftCode     TransactionType = "gift_code"
	TypeTeacherGrant TransactionType = "teacher_grant"
	TypePurchase     TransactionType = "purchase"
)

// RewardFamily reports whether t may be created through the reward operation.
func (t TransactionType) RewardFamily() bool {
	switch t {
	case TypeReward, TypeGiftCode, TypeTeacherGrant, TypePurchase:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDailyGrant, TypeUsage, TypeRefund, TypeReward, TypeGiftCode, TypeTeacherGrant, TypePurchase:
		return true
	default:
		return false
	}
}

// Transaction is one immutable row of the credit ledger. The signed sum of an
// account's transactions must always equal its stored balance.
type Transaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	AccountID   snowflake.ID    `json:"account_id" gorm:"not null;index:ix_credit_transactions_account"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Type        TransactionType `json:"type" gorm:"column:transaction_type;type:text;not null;index"`
	FeatureKey  *string         `json:"feature_key,omitempty" gorm:"type:text"`
	TraceID     *string         `json:"trace_id,omitempty" gorm:"type:text;index"`
	AttemptID   *snowflake.ID   `json:"attempt_id,omitempty" gorm:"column:attempt_id"`
	Description string          `json:"description" gorm:"type:text;not null"`
	GrantedBy   *snowflake.ID   `json:"granted_by,omitempty" gorm:"column:granted_by"`
	// RefundOf links a refund row to the usage row it compensates. The unique
	// index makes a second refund of the same transaction a constraint
	// violation rather than a double credit.
	RefundOf  *snowflake.ID `json:"refund_of,omitempty" gorm:"column:refund_of;uniqueIndex:ux_credit_transactions_refund_of"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "credit_transactions" }

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidType    = errors.New("invalid_transaction_type")
	ErrInvalidSign    = errors.New("invalid_amount_sign")
	ErrNotFound       = errors.New("transaction_not_found")
)

// ValidateSign enforces the amount sign contract per type: usage rows are
// negative, everything else positive.
func (t *Transaction) ValidateSign() error {
	if t.Type == TypeUsage {
		if t.Amount >= 0 {
			return ErrInvalidSign
		}
		return nil
	}
	if t.Amount <= 0 {
		return ErrInvalidSign
	}
	return nil
}
