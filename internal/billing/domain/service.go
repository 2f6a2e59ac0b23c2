package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
)

// Service is the billing engine: the only writer of balances and ledger rows.
// Every mutation pairs a balance update with its ledger append in one
// database transaction.
type Service interface {
	// Bill charges one use of a paid feature. The daily grant is applied
	// lazily first, so a stale account can still afford a feature its free
	// credits cover.
	Bill(ctx context.Context, req BillRequest) (*BillResult, error)
	// Refund compensates a billed operation whose downstream work failed.
	// When BillingTransactionID is set the refund is idempotent: a second
	// refund of the same transaction fails with ErrAlreadyRefunded.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// Reward credits an account outside the usage flow. Only reward-family
	// transaction types are accepted.
	Reward(ctx context.Context, req RewardRequest) (*RewardResult, error)
	// Balance reads the account, applying the lazy daily grant on the way so
	// the returned figure is what the next Bill would see.
	Balance(ctx context.Context, accountID snowflake.ID) (*BalanceResult, error)
}

type BillRequest struct {
	AccountID   snowflake.ID
	FeatureKey  string
	TraceID     *string
	AttemptID   *snowflake.ID
	Description string
}

type BillResult struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Cost          int64        `json:"cost"`
	Balance       int64        `json:"balance"`
	GrantApplied  bool         `json:"grant_applied"`
}

type RefundRequest struct {
	AccountID snowflake.ID
	// BillingTransactionID pins the refund to one usage row. Optional; when
	// absent the refund amount falls back to the current feature price.
	BillingTransactionID *snowflake.ID
	FeatureKey           string
	TraceID              *string
	AttemptID            *snowflake.ID
	Reason               string
}

type RefundResult struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Amount        int64        `json:"amount"`
	Balance       int64        `json:"balance"`
}

type RewardRequest struct {
	AccountID   snowflake.ID
	Type        ledgerdomain.TransactionType
	Amount      int64
	GrantedBy   *snowflake.ID
	Description string
}

type RewardResult struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Amount        int64        `json:"amount"`
	Balance       int64        `json:"balance"`
}

type BalanceResult struct {
	AccountID    snowflake.ID `json:"account_id"`
	Balance      int64        `json:"balance"`
	GrantApplied bool         `json:"grant_applied"`
	NextGrantAt  time.Time    `json:"next_grant_at"`
}

var (
	// ErrFeatureUnavailable covers both an unpriced feature and one whose
	// price is present but deactivated.
	ErrFeatureUnavailable = errors.New("feature_unavailable")
	// ErrMonthlyLimitExceeded means the charge would push the calendar-month
	// spend past the configured cap.
	ErrMonthlyLimitExceeded = errors.New("monthly_limit_exceeded")
	// ErrAlreadyRefunded means the referenced billing transaction has
	// already been compensated.
	ErrAlreadyRefunded = errors.New("already_refunded")
)
