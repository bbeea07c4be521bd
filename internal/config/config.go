// Package config defines the top-level configuration for the socialbet
// exchange and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOCIALBET_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Custodian CustodianConfig `toml:"custodian"`
	Wallet    WalletConfig    `toml:"wallet"`
	Journal   JournalConfig   `toml:"journal"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds the core exchange parameters. Amounts are in token
// base units.
type ExchangeConfig struct {
	// Owner is the owner address. When empty the wallet key's address is used.
	Owner             string `toml:"owner"`
	FeeAccount        string `toml:"fee_account"`
	Decimals          int    `toml:"decimals"`
	MinAmount         uint64 `toml:"min_amount"`
	MinPrice          uint64 `toml:"min_price"`
	FeeBps            uint64 `toml:"fee_bps"`
	MaxResultAttempts int    `toml:"max_result_attempts"`
	Funding           string `toml:"funding"`
}

// CustodianConfig selects the token the exchange holds funds in.
type CustodianConfig struct {
	Kind           string   `toml:"kind"`
	RPCURL         string   `toml:"rpc_url"`
	TokenAddress   string   `toml:"token_address"`
	ChainID        int64    `toml:"chain_id"`
	PollInterval   duration `toml:"poll_interval"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
}

// WalletConfig holds the exchange signing key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

type JournalConfig struct {
	Dir  string `toml:"dir"`
	Sync bool   `toml:"sync"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	BatchTimeout duration `toml:"batch_timeout"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthMaxSkew duration `toml:"auth_max_skew"`
	// RateLimit is the number of signed requests one address may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
}

func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Decimals:          6,
			MinAmount:         10_000,
			MinPrice:          10_000,
			FeeBps:            200,
			MaxResultAttempts: 3,
			Funding:           "ledger",
		},
		Custodian: CustodianConfig{
			Kind:           "memory",
			ChainID:        137,
			PollInterval:   duration{2 * time.Second},
			ReceiptTimeout: duration{2 * time.Minute},
		},
		Journal: JournalConfig{
			Dir:  "data/journal",
			Sync: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "socialbet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "socialbet-data",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "socialbet.events",
			BatchTimeout: duration{50 * time.Millisecond},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			AuthMaxSkew: duration{5 * time.Minute},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"result_escalated", "event_canceled", "error"},
		},
		Archive: ArchiveConfig{
			Enabled:  true,
			Interval: duration{time.Hour},
			Prefix:   "snapshots",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"exchange": true,
	"indexer":  true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsExchange reports whether the configured mode hosts the exchange core.
func (c *Config) RunsExchange() bool {
	m := strings.ToLower(c.Mode)
	return m == "exchange" || m == "full"
}

// RunsIndexer reports whether the configured mode projects events into
// postgres.
func (c *Config) RunsIndexer() bool {
	m := strings.ToLower(c.Mode)
	return m == "indexer" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: exchange, indexer, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.RunsExchange() {
		errs = append(errs, c.validateExchange()...)
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.AuthMaxSkew.Duration <= 0 {
			errs = append(errs, "server: auth_max_skew must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Archive
	if c.Archive.Enabled && c.Archive.Interval.Duration <= 0 {
		errs = append(errs, "archive: interval must be > 0 when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateExchange() []string {
	var errs []string

	if c.Exchange.Owner != "" && !common.IsHexAddress(c.Exchange.Owner) {
		errs = append(errs, fmt.Sprintf("exchange: owner %q is not an address", c.Exchange.Owner))
	}
	if c.Exchange.FeeAccount != "" && !common.IsHexAddress(c.Exchange.FeeAccount) {
		errs = append(errs, fmt.Sprintf("exchange: fee_account %q is not an address", c.Exchange.FeeAccount))
	}
	if c.Exchange.Decimals < 0 || c.Exchange.Decimals > 18 {
		errs = append(errs, fmt.Sprintf("exchange: decimals must be 0-18, got %d", c.Exchange.Decimals))
	}
	if c.Exchange.MinAmount == 0 {
		errs = append(errs, "exchange: min_amount must be > 0")
	}
	if c.Exchange.MinPrice == 0 {
		errs = append(errs, "exchange: min_price must be > 0")
	}
	if c.Exchange.FeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("exchange: fee_bps must be <= 10000, got %d", c.Exchange.FeeBps))
	}
	if c.Exchange.MaxResultAttempts < 1 {
		errs = append(errs, "exchange: max_result_attempts must be >= 1")
	}
	switch c.Exchange.Funding {
	case "ledger", "custodian":
	default:
		errs = append(errs, fmt.Sprintf("exchange: unknown funding %q (valid: ledger, custodian)", c.Exchange.Funding))
	}

	if c.Journal.Dir == "" {
		errs = append(errs, "journal: dir must not be empty")
	}

	switch c.Custodian.Kind {
	case "memory":
	case "erc20":
		if c.Custodian.RPCURL == "" {
			errs = append(errs, "custodian: rpc_url is required for kind erc20")
		}
		if !common.IsHexAddress(c.Custodian.TokenAddress) {
			errs = append(errs, "custodian: token_address must be an address for kind erc20")
		}
		if c.Custodian.ChainID <= 0 {
			errs = append(errs, "custodian: chain_id must be positive")
		}
		if c.Custodian.PollInterval.Duration <= 0 {
			errs = append(errs, "custodian: poll_interval must be > 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("custodian: unknown kind %q (valid: memory, erc20)", c.Custodian.Kind))
	}

	// The signing key is needed to move tokens on chain or to derive the owner.
	needsKey := c.Custodian.Kind == "erc20" || c.Exchange.Owner == ""
	if needsKey && c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set (or set exchange.owner with custodian kind memory)")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	return errs
}
