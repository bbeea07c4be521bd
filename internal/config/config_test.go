package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerHex = "0x00000000000000000000000000000000000000A1"

func validConfig() Config {
	cfg := Defaults()
	cfg.Exchange.Owner = ownerHex
	return cfg
}

func TestDefaultsWithOwnerValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.RunsExchange())
	assert.True(t, cfg.RunsIndexer())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.Exchange.FeeBps = 10_001
	cfg.Exchange.Funding = "credit"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"fee_bps must be <= 10000",
		`unknown funding "credit"`,
		"redis: addr must not be empty",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateERC20NeedsChainSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Custodian.Kind = "erc20"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url is required")
	assert.Contains(t, err.Error(), "token_address must be an address")
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")

	cfg.Custodian.RPCURL = "http://localhost:8545"
	cfg.Custodian.TokenAddress = "0x00000000000000000000000000000000000000b2"
	cfg.Wallet.PrivateKey = "0x01"
	require.NoError(t, cfg.Validate())
}

func TestIndexerModeSkipsExchangeChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "indexer"
	cfg.Exchange.Funding = "bogus"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.RunsExchange())
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "socialbet.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "exchange"

[exchange]
owner = "`+ownerHex+`"
fee_bps = 150
funding = "custodian"

[archive]
interval = "15m"
`), 0o600))

	t.Setenv("SOCIALBET_EXCHANGE_FEE_BPS", "250")
	t.Setenv("SOCIALBET_KAFKA_BROKERS", " k1:9092, ,k2:9092 ")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exchange", cfg.Mode)
	assert.Equal(t, uint64(250), cfg.Exchange.FeeBps)
	assert.Equal(t, "custodian", cfg.Exchange.Funding)
	assert.Equal(t, 15*time.Minute, cfg.Archive.Interval.Duration)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Exchange.MaxResultAttempts)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Custodian.RPCURL = "https://rpc.example/key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Custodian.RPCURL)
	assert.Empty(t, out.Wallet.KeyPassword)
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
