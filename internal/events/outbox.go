package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Event types emitted by the billing engine after a committed mutation.
const (
	EventCreditGranted  = "credit.granted"
	EventCreditRefunded = "credit.refunded"
	EventCreditRewarded = "credit.rewarded"
)

// Event is a fire-and-forget notification. Delivery is at-most-once
// attempted; the billing core never depends on it succeeding.
type Event struct {
	AccountID snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// OutboxEvent is the persisted row. Enqueued inside the same transaction as
// the balance/ledger mutation so a notification can never exist for a
// mutation that rolled back.
type OutboxEvent struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	AccountID    snowflake.ID `gorm:"not null;index"`
	EventType    string       `gorm:"type:text;not null"`
	Payload      string       `gorm:"type:text;not null"`
	DedupeKey    string       `gorm:"type:text;uniqueIndex:ux_outbox_events_dedupe"`
	DispatchedAt *time.Time   `gorm:"index"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

type Outbox struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(gdb *gorm.DB, log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		db:    gdb,
		log:   log.Named("events.outbox"),
		genID: genID,
	}
}

// PublishTx enqueues the event on the caller's transaction. A duplicate
// dedupe key is treated as already enqueued, not an error.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	err = tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, account_id, event_type, payload, dedupe_key, dispatched_at, created_at
		) VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		o.genID.Generate(),
		event.AccountID,
		event.Type,
		string(payload),
		event.DedupeKey,
		time.Now().UTC(),
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// Publish enqueues outside any caller transaction.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.PublishTx(ctx, o.db, event)
}

func (o *Outbox) pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	var rows []OutboxEvent
	err := o.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *Outbox) markDispatched(ctx context.Context, id snowflake.ID, at time.Time) error {
	return o.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET dispatched_at = ? WHERE id = ? AND dispatched_at IS NULL`,
		at.UTC(),
		id,
	).Error
}
