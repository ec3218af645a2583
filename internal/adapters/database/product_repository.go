package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/database"
)

// PostgresProductRepository implements products.Repository using pgx.
type PostgresProductRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresProductRepository(pool *pgxpool.Pool) *PostgresProductRepository {
	return &PostgresProductRepository{pool: pool}
}

const productColumns = `
	id, farmer_id, name, category, description, quantity, base_price,
	current_price, minimum_bid_increment, total_bids, highest_bid_id,
	images, location, quality, harvest_date, available_from,
	available_until, bidding_end_time, status, winner_id, sold_price,
	sold_at, views, featured, verified, tags, created_at, updated_at
`

func (r *PostgresProductRepository) Create(ctx context.Context, product *products.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`
	_, err := r.pool.Exec(ctx, query, productArgs(product)...)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanOptionalProduct(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the product row until the transaction ends. All bid
// submissions and responses funnel through this lock.
func (r *PostgresProductRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*products.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	return scanOptionalProduct(tx.QueryRow(ctx, query, id))
}

func (r *PostgresProductRepository) Update(ctx context.Context, product *products.Product) error {
	return r.update(ctx, r.pool, product)
}

func (r *PostgresProductRepository) UpdateTx(ctx context.Context, tx database.DBTX, product *products.Product) error {
	return r.update(ctx, tx, product)
}

func (r *PostgresProductRepository) update(ctx context.Context, db database.DBTX, product *products.Product) error {
	query := `
		UPDATE products SET
			name = $2, category = $3, description = $4, quantity = $5,
			base_price = $6, current_price = $7, minimum_bid_increment = $8,
			total_bids = $9, highest_bid_id = $10, images = $11, location = $12,
			quality = $13, harvest_date = $14, available_from = $15,
			available_until = $16, bidding_end_time = $17, status = $18,
			winner_id = $19, sold_price = $20, sold_at = $21, featured = $22,
			verified = $23, tags = $24, updated_at = $25
		WHERE id = $1
	`
	tag, err := db.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Category,
		product.Description,
		product.Quantity,
		product.BasePrice,
		product.CurrentPrice,
		product.MinimumBidIncrement,
		product.TotalBids,
		product.HighestBidID,
		notNilSlice(product.Images),
		product.Location,
		product.Quality,
		product.HarvestDate,
		product.AvailableFrom,
		product.AvailableUntil,
		product.BiddingEndTime,
		product.Status,
		product.WinnerID,
		product.SoldPrice,
		product.SoldAt,
		product.Featured,
		product.Verified,
		notNilSlice(product.Tags),
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s not found", product.ID)
	}
	return nil
}

func (r *PostgresProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s not found", id)
	}
	return nil
}

// IncrementViews bumps the view counter without touching updated_at.
func (r *PostgresProductRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) List(ctx context.Context, filter products.ListFilter) ([]*products.Product, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.FarmerID != uuid.Nil {
		where = append(where, "farmer_id = "+arg(filter.FarmerID))
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(filter.Status))
	}
	if filter.City != "" {
		where = append(where, "location->>'city' ILIKE "+arg(filter.City))
	}
	if filter.State != "" {
		where = append(where, "location->>'state' ILIKE "+arg(filter.State))
	}
	if filter.MinPrice > 0 {
		where = append(where, "current_price >= "+arg(filter.MinPrice))
	}
	if filter.MaxPrice > 0 {
		where = append(where, "current_price <= "+arg(filter.MaxPrice))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if filter.Featured != nil {
		where = append(where, "featured = "+arg(*filter.Featured))
	}
	if filter.OpenOnly {
		where = append(where, "status IN ('active', 'bidding')", "bidding_end_time > NOW()")
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + clause +
		` ORDER BY ` + orderClause(filter.Sort) +
		` LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var result []*products.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate products: %w", err)
	}
	return result, total, nil
}

// orderClause maps the public sort keys onto columns. Unknown keys fall back
// to newest first.
func orderClause(sort string) string {
	switch sort {
	case "price_asc":
		return "current_price ASC"
	case "price_desc":
		return "current_price DESC"
	case "ending_soon":
		return "bidding_end_time ASC"
	case "most_bids":
		return "total_bids DESC"
	case "most_viewed":
		return "views DESC"
	default:
		return "created_at DESC"
	}
}

func productArgs(p *products.Product) []any {
	return []any{
		p.ID, p.FarmerID, p.Name, p.Category, p.Description, p.Quantity,
		p.BasePrice, p.CurrentPrice, p.MinimumBidIncrement, p.TotalBids,
		p.HighestBidID, notNilSlice(p.Images), p.Location, p.Quality, p.HarvestDate,
		p.AvailableFrom, p.AvailableUntil, p.BiddingEndTime, p.Status,
		p.WinnerID, p.SoldPrice, p.SoldAt, p.Views, p.Featured, p.Verified,
		notNilSlice(p.Tags), p.CreatedAt, p.UpdatedAt,
	}
}

// notNilSlice keeps nil slices out of NOT NULL text[] columns; pgx would
// encode them as SQL NULL.
func notNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanOptionalProduct(row pgx.Row) (*products.Product, error) {
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return product, nil
}

func scanProduct(row pgx.Row) (*products.Product, error) {
	var p products.Product
	err := row.Scan(
		&p.ID, &p.FarmerID, &p.Name, &p.Category, &p.Description, &p.Quantity,
		&p.BasePrice, &p.CurrentPrice, &p.MinimumBidIncrement, &p.TotalBids,
		&p.HighestBidID, &p.Images, &p.Location, &p.Quality, &p.HarvestDate,
		&p.AvailableFrom, &p.AvailableUntil, &p.BiddingEndTime, &p.Status,
		&p.WinnerID, &p.SoldPrice, &p.SoldAt, &p.Views, &p.Featured, &p.Verified,
		&p.Tags, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}
