// The worker runs the outbox relay on its own, for deployments that prefer
// draining notifications outside the API nodes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"

	"github.com/agrobid/agrobid/internal/adapters/database"
	"github.com/agrobid/agrobid/internal/adapters/events"
	pkgdb "github.com/agrobid/agrobid/pkg/database"
	pkgevents "github.com/agrobid/agrobid/pkg/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, mustEnv(logger, "DATABASE_URL"))
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	amqpConn, err := amqp091.Dial(mustEnv(logger, "RABBITMQ_URL"))
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	publisher, err := events.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	outboxRepo := database.NewPostgresOutboxRepository(pool)
	relay := pkgevents.NewOutboxRelay(outboxRepo, publisher, txManager, pkgevents.RelayConfig{
		BatchSize: 10,
		Interval:  time.Second,
		Exchange:  events.Exchange,
	}, logger)

	logger.Info("Starting outbox relay worker")
	if err := relay.Run(ctx); err != nil {
		logger.Error("Relay stopped", "error", err)
		os.Exit(1)
	}
}

func mustEnv(logger *slog.Logger, name string) string {
	v := os.Getenv(name)
	if v == "" {
		logger.Error(name + " is not set")
		os.Exit(1)
	}
	return v
}
