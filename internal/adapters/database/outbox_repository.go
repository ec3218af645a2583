package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrobid/agrobid/pkg/database"
	pkgevents "github.com/agrobid/agrobid/pkg/events"
)

const outboxColumns = `id, event_type, payload, status, created_at, processed_at`

// PostgresOutboxRepository stores notification events next to the state
// change that produced them, for the relay to publish later.
type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// SaveEvent inserts a pending event inside the caller's transaction.
func (r *PostgresOutboxRepository) SaveEvent(ctx context.Context, tx database.DBTX, event *pkgevents.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4::outbox_status, $5)
	`
	if _, err := tx.Exec(ctx, query,
		event.ID, event.EventType, event.Payload, event.Status, event.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetPendingEvents claims up to limit unpublished events, oldest first.
// SKIP LOCKED lets several relay instances drain the table without
// contending.
func (r *PostgresOutboxRepository) GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*pkgevents.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = $1::outbox_status
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, pkgevents.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var result []*pkgevents.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return result, nil
}

// UpdateEventStatus moves an event to a new status, stamping processed_at
// once the row reaches a terminal state.
func (r *PostgresOutboxRepository) UpdateEventStatus(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status pkgevents.OutboxStatus) error {
	var processedAt *time.Time
	switch status {
	case pkgevents.OutboxStatusPublished, pkgevents.OutboxStatusFailed:
		now := time.Now()
		processedAt = &now
	}

	query := `
		UPDATE outbox_events
		SET status = $2::outbox_status, processed_at = $3
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query, eventID, status, processedAt)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

func scanOutboxEvent(row pgx.Row) (*pkgevents.OutboxEvent, error) {
	var event pkgevents.OutboxEvent
	if err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.Payload,
		&event.Status,
		&event.CreatedAt,
		&event.ProcessedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan outbox event: %w", err)
	}
	return &event, nil
}
