// Package testhelpers spins up throwaway infrastructure for integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase is a disposable Postgres instance with migrations applied.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDatabase starts a Postgres container, applies the goose migrations
// found at migrationsPath and returns a ready pool. Cleanup is registered on t.
func NewTestDatabase(t *testing.T, migrationsPath string) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("agrobid_test"),
		postgres.WithUsername("agrobid"),
		postgres.WithPassword("agrobid"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
		testcontainers.WithLogger(tclog.TestLogger(t)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %s", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %s", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect pool: %s", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping database: %s", err)
	}

	migrate(t, connStr, migrationsPath)

	td := &TestDatabase{Container: container, Pool: pool, ConnStr: connStr}
	t.Cleanup(func() {
		td.Pool.Close()
		if err := td.Container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	return td
}

// migrate runs goose over database/sql; pgxpool has no *sql.DB to hand it.
func migrate(t *testing.T, connStr, migrationsPath string) {
	t.Helper()

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("open sql db for migrations: %s", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("set goose dialect: %s", err)
	}
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		t.Fatalf("resolve migrations path: %s", err)
	}
	if err := goose.Up(db, abs); err != nil {
		t.Fatalf("apply migrations: %s", err)
	}
}

// Truncate empties the given tables between test cases.
func (td *TestDatabase) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := td.Pool.Exec(context.Background(), "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %s", table, err)
		}
	}
}
