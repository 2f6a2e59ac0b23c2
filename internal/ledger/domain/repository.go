package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows an account history read.
type ListFilter struct {
	Type      *TransactionType
	PageToken string
	PageSize  int
}

// Repository is append-only by contract: no update or delete exists.
type Repository interface {
	Append(ctx context.Context, db *gorm.DB, trx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListFilter) ([]*Transaction, error)
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]Transaction, error)
	// SumByAccount backs the reconciliation invariant: the signed sum of all
	// rows for an account equals the stored balance.
	SumByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	// MonthlyUsageSum returns credits spent (absolute value of usage rows)
	// since monthStart, for cap enforcement.
	MonthlyUsageSum(ctx context.Context, db *gorm.DB, accountID snowflake.ID, monthStart time.Time) (int64, error)
}
