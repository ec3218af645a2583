package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrobid/agrobid/pkg/database"
)

// OutboxStatus tracks how far an outbox row has travelled towards the broker.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusPublished  OutboxStatus = "published"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEvent is a notification written in the same transaction as the state
// change it describes. The relay drains these rows into the broker.
type OutboxEvent struct {
	ID          uuid.UUID    `db:"id"`
	EventType   string       `db:"event_type"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at"`
}

// OutboxRepository reads and updates the outbox table.
type OutboxRepository interface {
	GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEvent, error)
	UpdateEventStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status OutboxStatus) error
}

// EventPublisher hands a serialized event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// RelayConfig bounds a relay's polling behaviour.
type RelayConfig struct {
	// BatchSize caps how many rows one drain claims.
	BatchSize int
	// Interval is the polling period between drains.
	Interval time.Duration
	// Exchange is the broker exchange events are published to.
	Exchange string
}

// OutboxRelay periodically drains pending outbox rows into the broker.
// Rows are claimed with FOR UPDATE SKIP LOCKED, so several relay instances
// can run side by side without double publishing.
type OutboxRelay struct {
	repo   OutboxRepository
	broker EventPublisher
	txm    database.TransactionManager
	cfg    RelayConfig
	logger *slog.Logger
}

func NewOutboxRelay(
	repo OutboxRepository,
	broker EventPublisher,
	txm database.TransactionManager,
	cfg RelayConfig,
	logger *slog.Logger,
) *OutboxRelay {
	return &OutboxRelay{repo: repo, broker: broker, txm: txm, cfg: cfg, logger: logger}
}

// Run drains once immediately, then on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain claims a batch of pending rows, forwards them, and marks them
// published inside one transaction. A publish failure rolls the whole batch
// back, leaving every row pending for the next tick.
func (r *OutboxRelay) drain(ctx context.Context) error {
	tx, err := r.txm.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch, err := r.repo.GetPendingEvents(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending events: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	r.logger.Debug("draining outbox", "count", len(batch))

	if err := r.forward(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *OutboxRelay) forward(ctx context.Context, tx pgx.Tx, batch []*OutboxEvent) error {
	for _, ev := range batch {
		// Routing key is the event type, so consumers can bind selectively.
		if err := r.broker.Publish(ctx, r.cfg.Exchange, ev.EventType, ev.Payload); err != nil {
			return fmt.Errorf("publish event %s: %w", ev.ID, err)
		}
		if err := r.repo.UpdateEventStatus(ctx, tx, ev.ID, OutboxStatusPublished); err != nil {
			return fmt.Errorf("mark event %s published: %w", ev.ID, err)
		}
	}
	return nil
}
