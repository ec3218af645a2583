package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrobid/agrobid/internal/domain/users"
	"github.com/agrobid/agrobid/pkg/database"
)

// PostgresUserRepository implements users.Repository using pgx. Nested
// profile blocks live in jsonb columns.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `
	id, name, email, password_hash, phone, role, address,
	farmer_details, buyer_details, transporter_details,
	profile_image, rating, verified, active, last_login,
	created_at, updated_at
`

func (r *PostgresUserRepository) CreateUser(ctx context.Context, tx database.DBTX, user *users.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := tx.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Role,
		user.Address,
		user.FarmerDetails,
		user.BuyerDetails,
		user.TransporterDetails,
		user.ProfileImage,
		user.Rating,
		user.Verified,
		user.Active,
		user.LastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *users.User) error {
	query := `
		UPDATE users SET
			name = $2, email = $3, password_hash = $4, phone = $5, address = $6,
			farmer_details = $7, buyer_details = $8, transporter_details = $9,
			profile_image = $10, rating = $11, verified = $12, active = $13,
			last_login = $14, updated_at = $15
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Address,
		user.FarmerDetails,
		user.BuyerDetails,
		user.TransporterDetails,
		user.ProfileImage,
		user.Rating,
		user.Verified,
		user.Active,
		user.LastLogin,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", user.ID)
	}
	return nil
}

func (r *PostgresUserRepository) List(ctx context.Context, filter users.ListFilter) ([]*users.User, int64, error) {
	where := []string{"active = TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Role != "" {
		where = append(where, "role = "+arg(filter.Role))
	}
	if filter.City != "" {
		where = append(where, "address->>'city' ILIKE "+arg(filter.City))
	}
	if filter.State != "" {
		where = append(where, "address->>'state' ILIKE "+arg(filter.State))
	}
	if filter.Verified != nil {
		where = append(where, "verified = "+arg(*filter.Verified))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + clause +
		` ORDER BY created_at DESC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var result []*users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return result, total, nil
}

func (r *PostgresUserRepository) scanOne(row pgx.Row) (*users.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Role,
		&user.Address,
		&user.FarmerDetails,
		&user.BuyerDetails,
		&user.TransporterDetails,
		&user.ProfileImage,
		&user.Rating,
		&user.Verified,
		&user.Active,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
