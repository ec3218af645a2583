package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTransactionManager hands out transactions with a bounded lock wait.
// Bid submission and acceptance take row locks on products and bids; the
// timeout turns a stuck lock into an error instead of a hung request.
type PostgresTransactionManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresTransactionManager creates a transaction manager over the pool.
// A lockTimeout of 0 disables the per-transaction lock_timeout.
func NewPostgresTransactionManager(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresTransactionManager {
	return &PostgresTransactionManager{pool: pool, lockTimeout: lockTimeout}
}

func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if err := m.applyLockTimeout(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// applyLockTimeout scopes lock_timeout to the transaction via SET LOCAL, so
// the pooled connection comes back clean.
func (m *PostgresTransactionManager) applyLockTimeout(ctx context.Context, tx pgx.Tx) error {
	if m.lockTimeout <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}
