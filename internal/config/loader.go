package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOCIALBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOCIALBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.Owner, "SOCIALBET_EXCHANGE_OWNER")
	setStr(&cfg.Exchange.FeeAccount, "SOCIALBET_EXCHANGE_FEE_ACCOUNT")
	setInt(&cfg.Exchange.Decimals, "SOCIALBET_EXCHANGE_DECIMALS")
	setUint64(&cfg.Exchange.MinAmount, "SOCIALBET_EXCHANGE_MIN_AMOUNT")
	setUint64(&cfg.Exchange.MinPrice, "SOCIALBET_EXCHANGE_MIN_PRICE")
	setUint64(&cfg.Exchange.FeeBps, "SOCIALBET_EXCHANGE_FEE_BPS")
	setInt(&cfg.Exchange.MaxResultAttempts, "SOCIALBET_EXCHANGE_MAX_RESULT_ATTEMPTS")
	setStr(&cfg.Exchange.Funding, "SOCIALBET_EXCHANGE_FUNDING")

	// ── Custodian ──
	setStr(&cfg.Custodian.Kind, "SOCIALBET_CUSTODIAN_KIND")
	setStr(&cfg.Custodian.RPCURL, "SOCIALBET_CUSTODIAN_RPC_URL")
	setStr(&cfg.Custodian.TokenAddress, "SOCIALBET_CUSTODIAN_TOKEN_ADDRESS")
	setInt64(&cfg.Custodian.ChainID, "SOCIALBET_CUSTODIAN_CHAIN_ID")
	setDuration(&cfg.Custodian.PollInterval, "SOCIALBET_CUSTODIAN_POLL_INTERVAL")
	setDuration(&cfg.Custodian.ReceiptTimeout, "SOCIALBET_CUSTODIAN_RECEIPT_TIMEOUT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SOCIALBET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SOCIALBET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SOCIALBET_WALLET_KEY_PASSWORD")

	// ── Journal ──
	setStr(&cfg.Journal.Dir, "SOCIALBET_JOURNAL_DIR")
	setBool(&cfg.Journal.Sync, "SOCIALBET_JOURNAL_SYNC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SOCIALBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SOCIALBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOCIALBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOCIALBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOCIALBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOCIALBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOCIALBET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOCIALBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOCIALBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOCIALBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOCIALBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOCIALBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOCIALBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOCIALBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOCIALBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOCIALBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SOCIALBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOCIALBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOCIALBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOCIALBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOCIALBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SOCIALBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SOCIALBET_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "SOCIALBET_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "SOCIALBET_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "SOCIALBET_KAFKA_TOPIC")
	setDuration(&cfg.Kafka.BatchTimeout, "SOCIALBET_KAFKA_BATCH_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOCIALBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOCIALBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOCIALBET_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.AuthMaxSkew, "SOCIALBET_SERVER_AUTH_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "SOCIALBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SOCIALBET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOCIALBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOCIALBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOCIALBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOCIALBET_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SOCIALBET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "SOCIALBET_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "SOCIALBET_ARCHIVE_PREFIX")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOCIALBET_MODE")
	setStr(&cfg.LogLevel, "SOCIALBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
