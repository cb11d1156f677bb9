package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const testYAML = `
server:
  port: 8080
postgres:
  dsn: "host=localhost user=ledger dbname=ledger sslmode=disable"
provider:
  base_url: "https://api.example.com"
  master_wallet_id: "1000000"
payments:
  minimum_withdrawal: "10.00"
jobs:
  webhook_drain_interval: 2m
  job_timeout: 90s
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "1000000", cfg.Provider.MasterWalletID)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.WebhookDrainInterval)
	assert.Equal(t, 90*time.Second, cfg.Jobs.JobTimeout)
}

func TestLoad_PaymentDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	assert.NoError(t, err)

	// explicit value parses, the rest fall back to defaults
	assert.True(t, cfg.Payments.MinimumWithdrawal.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, cfg.Payments.MinimumDeposit.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, cfg.Payments.WithdrawalCut.Equal(decimal.RequireFromString("0.9")))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "from-env")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, testYAML))
	assert.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.APIKey)
	assert.Contains(t, cfg.Postgres.DSN, "password=hunter2")
}

func TestLoad_BadAmount(t *testing.T) {
	_, err := Load(writeConfig(t, "payments:\n  minimum_deposit: \"not-a-number\"\n"))
	assert.Error(t, err)
}
