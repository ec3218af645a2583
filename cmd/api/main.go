package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/agrobid/agrobid/internal/adapters/api"
	"github.com/agrobid/agrobid/internal/adapters/database"
	"github.com/agrobid/agrobid/internal/adapters/events"
	"github.com/agrobid/agrobid/internal/adapters/media"
	"github.com/agrobid/agrobid/internal/adapters/ws"
	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/internal/domain/transports"
	"github.com/agrobid/agrobid/internal/domain/users"
	"github.com/agrobid/agrobid/pkg/auth"
	pkgdb "github.com/agrobid/agrobid/pkg/database"
	pkgevents "github.com/agrobid/agrobid/pkg/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local overrides win over the committed defaults
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("Unable to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("Postgres connected")

	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}

	amqpConn, err := amqp091.Dial(rabbitURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ connected")

	publisher, err := events.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	signer, err := auth.NewSigner([]byte(os.Getenv("JWT_SECRET")), os.Getenv("JWT_ISSUER"), 0)
	if err != nil {
		logger.Error("Failed to create token signer", "error", err)
		os.Exit(1)
	}

	// Repositories
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	userRepo := database.NewPostgresUserRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	transportRepo := database.NewPostgresTransportRepository(pool)

	postgresProductRepo := database.NewPostgresProductRepository(pool)
	var productRepo products.Repository = postgresProductRepo
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed, product cache disabled", "error", err)
		} else {
			logger.Info("Redis connected")
			productRepo = database.NewCachedProductRepository(postgresProductRepo, rdb, 30*time.Second)
		}
	}

	mediaStore, err := newMediaStore(ctx)
	if err != nil {
		logger.Error("Failed to create media store", "error", err)
		os.Exit(1)
	}

	// Domain services
	userService := users.NewService(userRepo, txManager)
	productService := products.NewService(productRepo, mediaStore, logger)
	bidService := bids.NewService(txManager, bidRepo, productRepo, outboxRepo, logger)
	transportService := transports.NewService(txManager, transportRepo, bidRepo, productRepo, outboxRepo, logger)

	// Notification path: outbox -> relay -> broker -> consumer -> hub
	hub := ws.NewHub(logger)
	consumer := events.NewNotificationConsumer(amqpConn, hub, logger)
	relay := pkgevents.NewOutboxRelay(outboxRepo, publisher, txManager, pkgevents.RelayConfig{
		BatchSize: 10,
		Interval:  time.Second,
		Exchange:  events.Exchange,
	}, logger)

	router := api.NewRouter(api.Handlers{
		Users:      api.NewUserHandler(userService, signer, logger),
		Products:   api.NewProductHandler(productService, mediaStore, logger),
		Bids:       api.NewBidHandler(bidService, logger),
		Transports: api.NewTransportHandler(transportService, logger),
		Hub:        hub,
		Signer:     signer,
		Logger:     logger,
	})

	addr := ":" + envOr("PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting API server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting outbox relay")
		return relay.Run(ctx)
	})
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// newMediaStore picks the blob backend from the environment. S3 when a
// bucket is configured, local disk otherwise.
func newMediaStore(ctx context.Context) (media.Store, error) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		return media.NewLocalStore(envOr("MEDIA_DIR", "uploads"), envOr("MEDIA_BASE_URL", "/uploads"))
	}

	var opts []func(*awsconfig.LoadOptions) error
	if key := os.Getenv("S3_ACCESS_KEY"); key != "" {
		// S3-compatible stores (MinIO and friends) hand out static keys.
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("S3_SECRET_KEY"), ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return media.NewS3Store(client, bucket, os.Getenv("S3_PREFIX"), os.Getenv("S3_PUBLIC_URL"))
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
