package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	JWT       JWTConfig                 `mapstructure:"jwt"`
	AES       AESConfig                 `mapstructure:"aes"`
	Log       LogConfig                 `mapstructure:"log"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Kafka     KafkaConfig               `mapstructure:"kafka"`
	Secrets   SecretsConfig             `mapstructure:"secrets"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"` // debug, release, test
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Expiry   time.Duration `mapstructure:"expiry"`
	Issuer   string        `mapstructure:"issuer"`
	StateTTL time.Duration `mapstructure:"state_ttl"` // OAuth state validity window
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// PipelineConfig tunes webhook ingestion.
type PipelineConfig struct {
	StageTimeout       time.Duration `mapstructure:"stage_timeout"`
	LedgerRetention    time.Duration `mapstructure:"ledger_retention"`
	LedgerPayloadLimit int           `mapstructure:"ledger_payload_limit"`
	DedupScanLimit     int           `mapstructure:"dedup_scan_limit"` // page size, not a cap
	TotalTolerance     string        `mapstructure:"total_tolerance"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SecretsConfig struct {
	WebhookMasterKey string `mapstructure:"webhook_master_key"` // hex, derives manual-link webhook secrets
}

// PlatformConfig holds a storefront platform's app credentials and endpoints.
// URLs may contain {shop}, replaced with the store identifier.
type PlatformConfig struct {
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	AuthorizeURL string            `mapstructure:"authorize_url"`
	TokenURL     string            `mapstructure:"token_url"`
	APIBaseURL   string            `mapstructure:"api_base_url"`
	RedirectURL  string            `mapstructure:"redirect_url"`
	Scopes       []string          `mapstructure:"scopes"`
	AuthParams   map[string]string `mapstructure:"auth_params"` // extra consent URL query parameters
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: OIG_ (Order Intake Gateway).
// Nested keys use underscore: OIG_DATABASE_HOST, OIG_PIPELINE_STAGE_TIMEOUT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "order_intake")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "2s")
	v.SetDefault("redis.write_timeout", "2s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "order-intake-gateway")
	v.SetDefault("jwt.state_ttl", "10m")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("pipeline.stage_timeout", "5s")
	v.SetDefault("pipeline.ledger_retention", "720h")
	v.SetDefault("pipeline.ledger_payload_limit", 64*1024)
	v.SetDefault("pipeline.dedup_scan_limit", 500)
	v.SetDefault("pipeline.total_tolerance", "0.01")
	v.SetDefault("pipeline.idempotency_ttl", "24h")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "orders.admitted")
	v.SetDefault("secrets.webhook_master_key", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: OIG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("OIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional; env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Platform returns the configuration of a platform, if present.
func (c *Config) Platform(name string) (PlatformConfig, bool) {
	p, ok := c.Platforms[name]
	return p, ok
}
