package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/socialbet/internal/blob/s3"
	"github.com/alanyoungcy/socialbet/internal/cache/redis"
	"github.com/alanyoungcy/socialbet/internal/config"
	"github.com/alanyoungcy/socialbet/internal/metrics"
	"github.com/alanyoungcy/socialbet/internal/notify"
	"github.com/alanyoungcy/socialbet/internal/store/postgres"
	"github.com/alanyoungcy/socialbet/internal/stream/kafka"
)

// Dependencies bundles the infrastructure every mode draws from. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Postgres *postgres.Client
	Stores   postgres.Stores

	Redis       *redis.Client
	Bus         *redis.SignalBus
	RateLimiter *redis.RateLimiter
	Locks       *redis.LockManager

	// Blobs is nil in modes that do not touch object storage.
	Blobs *s3blob.Store

	// Topic is nil unless kafka is enabled.
	Topic *kafka.Publisher

	Notifier *notify.Notifier
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// needsS3 reports whether mode hosts the exchange, which stores metadata and
// snapshots in object storage.
func needsS3(mode string) bool {
	switch strings.ToLower(mode) {
	case "exchange", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(deps.Registry)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		n, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		logger.InfoContext(ctx, "postgres migrations applied", slog.Int("count", n))
	}
	deps.Postgres = pgClient
	deps.Stores = pgClient.Stores()

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)

	// --- S3 blob storage ---
	if needsS3(cfg.Mode) {
		store, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = store
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout.Duration,
		}, logger)
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("kafka: close publisher", slog.String("error", err.Error()))
			}
		})
		deps.Topic = pub
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(buildSenders(cfg.Notify), cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func buildSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return senders
}

// healthChecks names a probe per wired dependency.
func (d *Dependencies) healthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"postgres": d.Postgres.Ping,
		"redis":    d.Redis.Ping,
	}
	if d.Blobs != nil {
		checks["s3"] = d.Blobs.Health
	}
	return checks
}
