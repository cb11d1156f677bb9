package config

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Provider  ProviderConfig  `yaml:"provider"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	MasterWalletID string        `yaml:"master_wallet_id"`
	Timeout        time.Duration `yaml:"timeout"`
}

type OracleConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PaymentsConfig holds the monetary knobs. Amounts are YAML strings so they
// parse through decimal instead of float.
type PaymentsConfig struct {
	MinimumDeposit    decimal.Decimal `yaml:"-"`
	MinimumWithdrawal decimal.Decimal `yaml:"-"`
	WithdrawalCut     decimal.Decimal `yaml:"-"`

	RawMinimumDeposit    string `yaml:"minimum_deposit"`
	RawMinimumWithdrawal string `yaml:"minimum_withdrawal"`
	RawWithdrawalCut     string `yaml:"withdrawal_cut"`
}

type JobsConfig struct {
	WebhookDrainInterval    time.Duration `yaml:"webhook_drain_interval"`
	MonetaryRenewalInterval time.Duration `yaml:"monetary_renewal_interval"`
	TokenRenewalInterval    time.Duration `yaml:"token_renewal_interval"`
	FundSweepInterval       time.Duration `yaml:"fund_sweep_interval"`
	AddressSweepInterval    time.Duration `yaml:"address_sweep_interval"`
	OutboxPollInterval      time.Duration `yaml:"outbox_poll_interval"`
	JobTimeout              time.Duration `yaml:"job_timeout"`
}

// Load reads the yaml file and applies env overrides for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if key := os.Getenv("PROVIDER_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ORACLE_API_KEY"); key != "" {
		cfg.Oracle.APIKey = key
	}
	if err := cfg.Payments.parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *PaymentsConfig) parse() error {
	var err error
	if p.MinimumDeposit, err = parseAmount(p.RawMinimumDeposit, "1.00"); err != nil {
		return err
	}
	if p.MinimumWithdrawal, err = parseAmount(p.RawMinimumWithdrawal, "5.00"); err != nil {
		return err
	}
	if p.WithdrawalCut, err = parseAmount(p.RawWithdrawalCut, "0.9"); err != nil {
		return err
	}
	return nil
}

func parseAmount(raw, fallback string) (decimal.Decimal, error) {
	if raw == "" {
		raw = fallback
	}
	return decimal.NewFromString(raw)
}
