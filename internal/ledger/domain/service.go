package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	"github.com/prepware/creditengine/pkg/db/pagination"
)

// Service is the read side of the ledger: history, audit views, receipts and
// the reconciliation invariant check. All writes go through the billing
// engine.
type Service interface {
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
	Recent(ctx context.Context, limit int) ([]Transaction, error)
	// Receipt joins a single transaction with its correlated AI usage record,
	// if one exists, for cost transparency.
	Receipt(ctx context.Context, transactionID snowflake.ID) (*Receipt, error)
	// Reconcile compares the signed ledger sum with the stored balance. Drift
	// indicates a bug or an out-of-band balance write, which must never
	// happen.
	Reconcile(ctx context.Context, accountID snowflake.ID) (*Reconciliation, error)
}

type HistoryRequest struct {
	AccountID snowflake.ID
	Type      *TransactionType
	PageToken string
	PageSize  int
}

type HistoryResponse struct {
	Transactions []Transaction       `json:"transactions"`
	PageInfo     pagination.PageInfo `json:"page_info"`
}

type Receipt struct {
	Transaction Transaction            `json:"transaction"`
	AIUsage     *aiusagedomain.Record  `json:"ai_usage,omitempty"`
}

type Reconciliation struct {
	AccountID  snowflake.ID `json:"account_id"`
	Balance    int64        `json:"balance"`
	LedgerSum  int64        `json:"ledger_sum"`
	Consistent bool         `json:"consistent"`
}
