package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/pkg/database"
)

// PostgresBidRepository implements bids.Repository using pgx.
type PostgresBidRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

const bidColumns = `
	id, product_id, buyer_id, amount, quantity, status, message,
	delivery_preference, payment_method, valid_until, auto_renew,
	is_highest, previous_bid_amount, bid_increment, response,
	notification, created_at, updated_at
`

func (r *PostgresBidRepository) Create(ctx context.Context, tx database.DBTX, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ProductID,
		bid.BuyerID,
		bid.Amount,
		bid.Quantity,
		bid.Status,
		bid.Message,
		bid.DeliveryPreference,
		bid.PaymentMethod,
		bid.ValidUntil,
		bid.AutoRenew,
		bid.IsHighest,
		bid.PreviousBidAmount,
		bid.BidIncrement,
		bid.Response,
		bid.Notification,
		bid.CreatedAt,
		bid.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func (r *PostgresBidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bids.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	return scanOptionalBid(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresBidRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*bids.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 FOR UPDATE`
	return scanOptionalBid(tx.QueryRow(ctx, query, id))
}

func (r *PostgresBidRepository) GetActiveByProductAndBuyer(ctx context.Context, tx database.DBTX, productID, buyerID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE product_id = $1 AND buyer_id = $2 AND status = 'active'
		FOR UPDATE
	`
	return scanOptionalBid(tx.QueryRow(ctx, query, productID, buyerID))
}

func (r *PostgresBidRepository) Update(ctx context.Context, bid *bids.Bid) error {
	return r.update(ctx, r.pool, bid)
}

func (r *PostgresBidRepository) UpdateTx(ctx context.Context, tx database.DBTX, bid *bids.Bid) error {
	return r.update(ctx, tx, bid)
}

func (r *PostgresBidRepository) update(ctx context.Context, db database.DBTX, bid *bids.Bid) error {
	query := `
		UPDATE bids SET
			status = $2, message = $3, delivery_preference = $4,
			payment_method = $5, valid_until = $6, auto_renew = $7,
			is_highest = $8, previous_bid_amount = $9, bid_increment = $10,
			response = $11, notification = $12, updated_at = $13
		WHERE id = $1
	`
	tag, err := db.Exec(ctx, query,
		bid.ID,
		bid.Status,
		bid.Message,
		bid.DeliveryPreference,
		bid.PaymentMethod,
		bid.ValidUntil,
		bid.AutoRenew,
		bid.IsHighest,
		bid.PreviousBidAmount,
		bid.BidIncrement,
		bid.Response,
		bid.Notification,
		bid.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid %s not found", bid.ID)
	}
	return nil
}

func (r *PostgresBidRepository) ClearHighest(ctx context.Context, tx database.DBTX, productID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE bids SET is_highest = FALSE WHERE product_id = $1 AND is_highest`, productID)
	if err != nil {
		return fmt.Errorf("failed to clear highest flag: %w", err)
	}
	return nil
}

// RejectActiveExcept is the bulk sweep after an accept. Losing bids get no
// individual response metadata, only the status flip.
func (r *PostgresBidRepository) RejectActiveExcept(ctx context.Context, tx database.DBTX, productID, exceptBidID uuid.UUID) (int64, error) {
	query := `
		UPDATE bids SET
			status = 'rejected',
			is_highest = FALSE,
			response = jsonb_set(response, '{status}', '"rejected"'),
			updated_at = $3
		WHERE product_id = $1 AND id <> $2 AND status = 'active'
	`
	tag, err := tx.Exec(ctx, query, productID, exceptBidID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to reject bids: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresBidRepository) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*bids.Bid, int64, error) {
	clause := `product_id = $1 AND status IN ('active', 'accepted')`
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE `+clause, productID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE ` + clause + `
		ORDER BY amount DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryBids(ctx, query, total, productID, limit, offset)
}

func (r *PostgresBidRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter bids.ListFilter) ([]*bids.Bid, int64, error) {
	where := []string{"buyer_id = $1"}
	args := []any{buyerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM bids WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, bidColumns, clause, len(args)-1, len(args))
	return r.queryBids(ctx, query, total, args...)
}

// ListByFarmer returns bids against any product owned by the farmer.
func (r *PostgresBidRepository) ListByFarmer(ctx context.Context, farmerID uuid.UUID, filter bids.ListFilter) ([]*bids.Bid, int64, error) {
	where := []string{"p.farmer_id = $1"}
	args := []any{farmerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("b.status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM bids b JOIN products p ON p.id = b.product_id WHERE ` + clause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	cols := prefixColumns(bidColumns, "b.")
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids b
		JOIN products p ON p.id = b.product_id
		WHERE %s
		ORDER BY b.created_at DESC
		LIMIT $%d OFFSET $%d
	`, cols, clause, len(args)-1, len(args))
	return r.queryBids(ctx, query, total, args...)
}

func (r *PostgresBidRepository) queryBids(ctx context.Context, query string, total int64, args ...any) ([]*bids.Bid, int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return result, total, nil
}

func prefixColumns(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanOptionalBid(row pgx.Row) (*bids.Bid, error) {
	bid, err := scanBid(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bid, nil
}

func scanBid(row pgx.Row) (*bids.Bid, error) {
	var b bids.Bid
	err := row.Scan(
		&b.ID,
		&b.ProductID,
		&b.BuyerID,
		&b.Amount,
		&b.Quantity,
		&b.Status,
		&b.Message,
		&b.DeliveryPreference,
		&b.PaymentMethod,
		&b.ValidUntil,
		&b.AutoRenew,
		&b.IsHighest,
		&b.PreviousBidAmount,
		&b.BidIncrement,
		&b.Response,
		&b.Notification,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan bid: %w", err)
	}
	return &b, nil
}
