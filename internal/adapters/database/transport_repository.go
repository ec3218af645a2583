package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrobid/agrobid/internal/domain/transports"
	"github.com/agrobid/agrobid/pkg/database"
)

// PostgresTransportRepository implements transports.Repository using pgx.
// The tracking log and all nested blocks live in jsonb columns.
type PostgresTransportRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTransportRepository(pool *pgxpool.Pool) *PostgresTransportRepository {
	return &PostgresTransportRepository{pool: pool}
}

const transportColumns = `
	id, product_id, bid_id, transporter_id, farmer_id, buyer_id,
	pickup_location, delivery_location, vehicle, cost, distance,
	estimated_duration, scheduled_pickup_time, scheduled_delivery_time,
	actual_pickup_time, actual_delivery_time, status, tracking_updates,
	payment_status, payment_method, rating, documents, notes,
	cancellation_reason, cancelled_by, cancelled_at, created_at, updated_at
`

func (r *PostgresTransportRepository) Create(ctx context.Context, tx database.DBTX, t *transports.Transport) error {
	query := `
		INSERT INTO transports (` + transportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`
	_, err := tx.Exec(ctx, query,
		t.ID, t.ProductID, t.BidID, t.TransporterID, t.FarmerID, t.BuyerID,
		t.PickupLocation, t.DeliveryLocation, t.Vehicle, t.Cost, t.Distance,
		t.Duration, t.ScheduledPickupTime, t.ScheduledDeliveryTime,
		t.ActualPickupTime, t.ActualDeliveryTime, t.Status, t.TrackingUpdates,
		t.PaymentStatus, t.PaymentMethod, t.Rating, t.Documents, t.Notes,
		t.CancellationReason, t.CancelledBy, t.CancelledAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transport: %w", err)
	}
	return nil
}

func (r *PostgresTransportRepository) GetByID(ctx context.Context, id uuid.UUID) (*transports.Transport, error) {
	query := `SELECT ` + transportColumns + ` FROM transports WHERE id = $1`
	return scanOptionalTransport(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresTransportRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*transports.Transport, error) {
	query := `SELECT ` + transportColumns + ` FROM transports WHERE id = $1 FOR UPDATE`
	return scanOptionalTransport(tx.QueryRow(ctx, query, id))
}

func (r *PostgresTransportRepository) GetByBid(ctx context.Context, bidID uuid.UUID) (*transports.Transport, error) {
	query := `SELECT ` + transportColumns + ` FROM transports WHERE bid_id = $1`
	return scanOptionalTransport(r.pool.QueryRow(ctx, query, bidID))
}

func (r *PostgresTransportRepository) Update(ctx context.Context, t *transports.Transport) error {
	return r.update(ctx, r.pool, t)
}

func (r *PostgresTransportRepository) UpdateTx(ctx context.Context, tx database.DBTX, t *transports.Transport) error {
	return r.update(ctx, tx, t)
}

func (r *PostgresTransportRepository) update(ctx context.Context, db database.DBTX, t *transports.Transport) error {
	query := `
		UPDATE transports SET
			pickup_location = $2, delivery_location = $3, vehicle = $4,
			cost = $5, distance = $6, estimated_duration = $7,
			scheduled_pickup_time = $8, scheduled_delivery_time = $9,
			actual_pickup_time = $10, actual_delivery_time = $11, status = $12,
			tracking_updates = $13, payment_status = $14, payment_method = $15,
			rating = $16, documents = $17, notes = $18,
			cancellation_reason = $19, cancelled_by = $20, cancelled_at = $21,
			updated_at = $22
		WHERE id = $1
	`
	tag, err := db.Exec(ctx, query,
		t.ID, t.PickupLocation, t.DeliveryLocation, t.Vehicle, t.Cost,
		t.Distance, t.Duration, t.ScheduledPickupTime, t.ScheduledDeliveryTime,
		t.ActualPickupTime, t.ActualDeliveryTime, t.Status, t.TrackingUpdates,
		t.PaymentStatus, t.PaymentMethod, t.Rating, t.Documents, t.Notes,
		t.CancellationReason, t.CancelledBy, t.CancelledAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transport: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transport %s not found", t.ID)
	}
	return nil
}

func (r *PostgresTransportRepository) ListByParty(ctx context.Context, userID uuid.UUID, filter transports.ListFilter) ([]*transports.Transport, int64, error) {
	where := []string{"(farmer_id = $1 OR buyer_id = $1 OR transporter_id = $1)"}
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transports WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transports: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM transports WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, transportColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transports: %w", err)
	}
	defer rows.Close()

	result, err := collectTransports(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresTransportRepository) ListActiveByTransporter(ctx context.Context, transporterID uuid.UUID) ([]*transports.Transport, error) {
	query := `
		SELECT ` + transportColumns + `
		FROM transports
		WHERE transporter_id = $1
			AND status IN ('confirmed', 'in_transit', 'picked_up', 'out_for_delivery')
		ORDER BY scheduled_pickup_time ASC
	`
	rows, err := r.pool.Query(ctx, query, transporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transports: %w", err)
	}
	defer rows.Close()
	return collectTransports(rows)
}

func collectTransports(rows pgx.Rows) ([]*transports.Transport, error) {
	var result []*transports.Transport
	for rows.Next() {
		t, err := scanTransport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transports: %w", err)
	}
	return result, nil
}

func scanOptionalTransport(row pgx.Row) (*transports.Transport, error) {
	t, err := scanTransport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func scanTransport(row pgx.Row) (*transports.Transport, error) {
	var t transports.Transport
	err := row.Scan(
		&t.ID, &t.ProductID, &t.BidID, &t.TransporterID, &t.FarmerID, &t.BuyerID,
		&t.PickupLocation, &t.DeliveryLocation, &t.Vehicle, &t.Cost, &t.Distance,
		&t.Duration, &t.ScheduledPickupTime, &t.ScheduledDeliveryTime,
		&t.ActualPickupTime, &t.ActualDeliveryTime, &t.Status, &t.TrackingUpdates,
		&t.PaymentStatus, &t.PaymentMethod, &t.Rating, &t.Documents, &t.Notes,
		&t.CancellationReason, &t.CancelledBy, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan transport: %w", err)
	}
	return &t, nil
}
