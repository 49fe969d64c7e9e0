package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token cache backends
const (
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Sync         SyncConfig
	Marketplaces map[string]MarketplaceConfig
	Secrets      SecretsConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	MaxBodySize    int64
	// SyncRateLimit bounds sync triggers per store within SyncRateWindow
	SyncRateLimit  int
	SyncRateWindow time.Duration
}

// SyncConfig holds reconciliation engine settings
type SyncConfig struct {
	// Concurrency bounds the card groups processed in parallel within one pass
	Concurrency int
	// CallTimeout bounds each marketplace call
	CallTimeout time.Duration
	// BatchTimeout bounds a whole pass
	BatchTimeout time.Duration
	// Interval is the period of the background trigger; 0 disables it
	Interval time.Duration
	// MaxConcurrentJobs bounds passes running at once across integrations
	MaxConcurrentJobs int
	// TokenExpiryMargin is subtracted from token expiry before caching
	TokenExpiryMargin time.Duration
	// TokenCache selects the token cache backend: memory or redis
	TokenCache string
}

// MarketplaceConfig holds per-marketplace transport settings
type MarketplaceConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	TimeoutSeconds    int
}

// SecretsConfig holds the key sealing credential secrets at rest
type SecretsConfig struct {
	// Key is the hex encoded 32 byte sealing key
	Key string
}

// KeyBytes decodes the sealing key
func (s SecretsConfig) KeyBytes() ([]byte, error) {
	return hex.DecodeString(s.Key)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to export traces
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // 0.0-1.0
	ServiceName           string
	Insecure              bool // non-TLS connection to the collector
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	DBTraceEnabled        bool
	DBLogFullSQL          bool // dev only
	DBSlowQueryThresh     time.Duration
}

// marketplaceCodes are the sections read under [marketplaces]
var marketplaceCodes = []string{"storefront", "auction", "cardmarket", "retail"}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CARDVAULT_ prefix (e.g., CARDVAULT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper builds the configuration from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CARDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			SyncRateLimit:  v.GetInt("http.sync_rate_limit"),
			SyncRateWindow: v.GetDuration("http.sync_rate_window"),
		},
		Sync: SyncConfig{
			Concurrency:       v.GetInt("sync.concurrency"),
			CallTimeout:       v.GetDuration("sync.call_timeout"),
			BatchTimeout:      v.GetDuration("sync.batch_timeout"),
			Interval:          v.GetDuration("sync.interval"),
			MaxConcurrentJobs: v.GetInt("sync.max_concurrent_jobs"),
			TokenExpiryMargin: v.GetDuration("sync.token_expiry_margin"),
			TokenCache:        v.GetString("sync.token_cache"),
		},
		Marketplaces: make(map[string]MarketplaceConfig, len(marketplaceCodes)),
		Secrets: SecretsConfig{
			Key: v.GetString("secrets.key"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	for _, code := range marketplaceCodes {
		prefix := "marketplaces." + code + "."
		cfg.Marketplaces[code] = MarketplaceConfig{
			BaseURL:           v.GetString(prefix + "base_url"),
			RequestsPerSecond: v.GetFloat64(prefix + "requests_per_second"),
			Burst:             v.GetInt(prefix + "burst"),
			TimeoutSeconds:    v.GetInt(prefix + "timeout_seconds"),
		}
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cardvault-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "cardvault"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// A forced sync answers only after the whole pass
		cfg.HTTP.WriteTimeout = 6 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.SyncRateLimit == 0 {
		cfg.HTTP.SyncRateLimit = 30
	}
	if cfg.HTTP.SyncRateWindow == 0 {
		cfg.HTTP.SyncRateWindow = time.Minute
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 4
	}
	if cfg.Sync.CallTimeout == 0 {
		cfg.Sync.CallTimeout = 30 * time.Second
	}
	if cfg.Sync.BatchTimeout == 0 {
		cfg.Sync.BatchTimeout = 5 * time.Minute
	}
	if cfg.Sync.MaxConcurrentJobs == 0 {
		cfg.Sync.MaxConcurrentJobs = 3
	}
	if cfg.Sync.TokenExpiryMargin == 0 {
		cfg.Sync.TokenExpiryMargin = 5 * time.Minute
	}
	if cfg.Sync.TokenCache == "" {
		cfg.Sync.TokenCache = TokenCacheMemory
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	for code, m := range cfg.Marketplaces {
		if m.RequestsPerSecond == 0 {
			m.RequestsPerSecond = 2
		}
		if m.Burst == 0 {
			m.Burst = 4
		}
		if m.TimeoutSeconds == 0 {
			m.TimeoutSeconds = 30
		}
		cfg.Marketplaces[code] = m
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency cannot be negative")
	}
	if c.Sync.CallTimeout > c.Sync.BatchTimeout {
		return fmt.Errorf("sync.call_timeout (%s) cannot exceed sync.batch_timeout (%s)",
			c.Sync.CallTimeout, c.Sync.BatchTimeout)
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval cannot be negative")
	}
	if c.Sync.TokenCache != TokenCacheMemory && c.Sync.TokenCache != TokenCacheRedis {
		return fmt.Errorf("sync.token_cache must be %q or %q, got %q", TokenCacheMemory, TokenCacheRedis, c.Sync.TokenCache)
	}

	for code, m := range c.Marketplaces {
		if m.RequestsPerSecond < 0 {
			return fmt.Errorf("marketplaces.%s.requests_per_second cannot be negative", code)
		}
		if m.BaseURL != "" {
			if u, err := url.Parse(m.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Errorf("marketplaces.%s.base_url must be an http(s) URL", code)
			}
		}
	}

	if c.Secrets.Key != "" {
		key, err := c.Secrets.KeyBytes()
		if err != nil || len(key) != 32 {
			return fmt.Errorf("secrets.key must be 32 hex encoded bytes")
		}
	}

	if c.HTTP.SyncRateLimit < 0 {
		return fmt.Errorf("http.sync_rate_limit cannot be negative")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
		if c.Secrets.Key == "" {
			return fmt.Errorf("secrets.key is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
