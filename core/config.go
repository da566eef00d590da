package core

import (
	"strings"
	"time"
)

type SignatureConfig struct {
	Secret           string `koanf:"secret" mapstructure:"secret"`
	ToleranceSeconds int    `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
}

func (c SignatureConfig) Tolerance() time.Duration {
	if c.ToleranceSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ToleranceSeconds) * time.Second
}

type PartnerConfig struct {
	CouponCode string `koanf:"coupon_code" mapstructure:"coupon_code"`
}

type AirtableConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
	BaseID  string `koanf:"base_id" mapstructure:"base_id"`
	Table   string `koanf:"table" mapstructure:"table"`
	Token   string `koanf:"token" mapstructure:"token"`
}

type RelayConfig struct {
	Enabled bool   `koanf:"enabled" mapstructure:"enabled"`
	URL     string `koanf:"url" mapstructure:"url"`
}

type DeliveryConfig struct {
	MaxAttempts           int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMillis  int `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMillis      int `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	AttemptTimeoutMillis  int `koanf:"attempt_timeout_ms" mapstructure:"attempt_timeout_ms"`
}

func (c DeliveryConfig) InitialBackoff() time.Duration {
	if c.InitialBackoffMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.InitialBackoffMillis) * time.Millisecond
}

func (c DeliveryConfig) MaxBackoff() time.Duration {
	if c.MaxBackoffMillis <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.MaxBackoffMillis) * time.Millisecond
}

func (c DeliveryConfig) AttemptTimeout() time.Duration {
	if c.AttemptTimeoutMillis <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AttemptTimeoutMillis) * time.Millisecond
}

type ServerConfig struct {
	Port         string `koanf:"port" mapstructure:"port"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	RecentLimit  int    `koanf:"recent_limit" mapstructure:"recent_limit"`
}

type PersistenceConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

// go-persistence-bun config contract.

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.DSN
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	return "stripe-webhook"
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Signature   SignatureConfig   `koanf:"signature" mapstructure:"signature"`
	Partner     PartnerConfig     `koanf:"partner" mapstructure:"partner"`
	Airtable    AirtableConfig    `koanf:"airtable" mapstructure:"airtable"`
	Relay       RelayConfig       `koanf:"relay" mapstructure:"relay"`
	Delivery    DeliveryConfig    `koanf:"delivery" mapstructure:"delivery"`
	Server      ServerConfig      `koanf:"server" mapstructure:"server"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "stripe-webhook",
		Signature: SignatureConfig{
			ToleranceSeconds: 300,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:          3,
			InitialBackoffMillis: 1000,
			MaxBackoffMillis:     30000,
			AttemptTimeoutMillis: 10000,
		},
		Server: ServerConfig{
			Port:         "8080",
			MaxBodyBytes: 1 << 20,
			RecentLimit:  50,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return ConfigError("core: service_name is required", nil)
	}
	if strings.TrimSpace(c.Signature.Secret) == "" {
		return ConfigError("core: signature secret is required", nil)
	}
	if c.Airtable.Enabled {
		if strings.TrimSpace(c.Airtable.BaseID) == "" || strings.TrimSpace(c.Airtable.Table) == "" {
			return ConfigError("core: airtable base id and table are required when the sink is enabled", nil)
		}
		if strings.TrimSpace(c.Airtable.Token) == "" {
			return ConfigError("core: airtable token is required when the sink is enabled", nil)
		}
	}
	if c.Relay.Enabled && strings.TrimSpace(c.Relay.URL) == "" {
		return ConfigError("core: relay url is required when the sink is enabled", nil)
	}
	if c.Delivery.MaxAttempts <= 0 {
		return ConfigError("core: delivery max_attempts must be positive", nil)
	}
	return nil
}
