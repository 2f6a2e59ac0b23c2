package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	dispatchInterval = 2 * time.Second
	dispatchBatch    = 100
)

// Notifier delivers one event to the outside world (email, push, webhook).
// Implementations must tolerate redelivery of the same dedupe key.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier is the default sink: it just logs. Real senders plug in behind
// the same interface.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("events.notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.log.Info("notification",
		zap.String("event_type", event.Type),
		zap.String("account_id", event.AccountID.String()),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// Dispatcher drains the outbox in the background. An event is marked
// dispatched after one delivery attempt, successful or not: notifications
// are at-most-once attempted and never block or fail billing.
type Dispatcher struct {
	outbox   *Outbox
	notifier Notifier
	log      *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewDispatcher(outbox *Outbox, notifier Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		notifier: notifier,
		log:      log.Named("events.dispatcher"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.drain(context.Background())
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	rows, err := d.outbox.pending(ctx, dispatchBatch)
	if err != nil {
		d.log.Warn("outbox poll failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		event := Event{
			AccountID: row.AccountID,
			Type:      row.EventType,
			DedupeKey: row.DedupeKey,
		}
		if err := json.Unmarshal([]byte(row.Payload), &event.Payload); err != nil {
			d.log.Warn("outbox payload unreadable, skipping",
				zap.String("event_id", row.ID.String()),
				zap.Error(err),
			)
		} else if err := d.notifier.Notify(ctx, event); err != nil {
			d.log.Warn("notification delivery failed",
				zap.String("event_id", row.ID.String()),
				zap.String("event_type", row.EventType),
				zap.Error(err),
			)
		}

		if err := d.outbox.markDispatched(ctx, row.ID, time.Now()); err != nil {
			d.log.Warn("outbox mark failed", zap.String("event_id", row.ID.String()), zap.Error(err))
		}
	}
}
