package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	CRM        CRMConfig
	Accounting AccountingConfig
	Sync       SyncConfig
	Ops        OpsConfig
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

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool    // Log full SQL statements (dev only)

	ProfilingEnabled    bool   // Push continuous profiles to Pyroscope
	ProfilingAddress    string // Pyroscope server address (e.g., "http://localhost:4040")
	ProfilingAuthUser   string // Optional basic auth user
	ProfilingAuthPass   string // Optional basic auth password
	ProfilingContention bool   // Add mutex and block profiles
	SpanProfiles        bool   // Link CPU profiles to trace spans
}

// CRMConfig holds HubSpot app credentials
type CRMConfig struct {
	APIBaseURL     string
	ClientID       string
	ClientSecret   string
	TimeoutSeconds int
	// WebhookBaseURL is the public scheme and host HubSpot signs webhook URLs with
	WebhookBaseURL string
}

// AccountingConfig holds Saasu API settings
type AccountingConfig struct {
	APIBaseURL     string
	TimeoutSeconds int
	PageSize       int
}

// SyncConfig holds reconciliation rules and the worker pool settings
type SyncConfig struct {
	// CurrencyFields maps an accounting file id to the deal property holding its currency
	CurrencyFields map[string]string
	// QuoteStages maps an accounting file id to the deal stages that raise a quote
	QuoteStages map[string][]string
	// DealAmountWriteBackFactor is a decimal string, e.g. "1.10"
	DealAmountWriteBackFactor string `validate:"required,numeric"`
	PropagateDeletions        bool
	DedupTTL                  time.Duration `validate:"gt=0"`

	PollEnabled  bool
	PollHour     int    `validate:"gte=0,lte=23"`
	PollMinute   int    `validate:"gte=0,lte=59"`
	PollTimezone string `validate:"required,timezone"`

	Workers       int           `validate:"gte=1"`
	QueueSize     int           `validate:"gte=1"`
	JobTimeout    time.Duration `validate:"gt=0"`
	RetryAttempts int           `validate:"gte=0"`
	RetryDelay    time.Duration `validate:"gte=0"`
}

// OpsConfig holds the operator API bearer token settings
type OpsConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGERLINK_ prefix (e.g., LEDGERLINK_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ledgerlink")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGERLINK")
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
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),

			ProfilingEnabled:    v.GetBool("telemetry.profiling_enabled"),
			ProfilingAddress:    v.GetString("telemetry.profiling_address"),
			ProfilingAuthUser:   v.GetString("telemetry.profiling_auth_user"),
			ProfilingAuthPass:   v.GetString("telemetry.profiling_auth_pass"),
			ProfilingContention: v.GetBool("telemetry.profiling_contention"),
			SpanProfiles:        v.GetBool("telemetry.span_profiles"),
		},
		CRM: CRMConfig{
			APIBaseURL:     v.GetString("crm.api_base_url"),
			ClientID:       v.GetString("crm.client_id"),
			ClientSecret:   v.GetString("crm.client_secret"),
			TimeoutSeconds: v.GetInt("crm.timeout_seconds"),
			WebhookBaseURL: v.GetString("crm.webhook_base_url"),
		},
		Accounting: AccountingConfig{
			APIBaseURL:     v.GetString("accounting.api_base_url"),
			TimeoutSeconds: v.GetInt("accounting.timeout_seconds"),
			PageSize:       v.GetInt("accounting.page_size"),
		},
		Sync: SyncConfig{
			CurrencyFields:            v.GetStringMapString("sync.currency_fields"),
			QuoteStages:               v.GetStringMapStringSlice("sync.quote_stages"),
			DealAmountWriteBackFactor: v.GetString("sync.deal_amount_writeback_factor"),
			PropagateDeletions:        v.GetBool("sync.propagate_deletions"),
			DedupTTL:                  v.GetDuration("sync.dedup_ttl"),
			PollEnabled:               !v.IsSet("sync.poll_enabled") || v.GetBool("sync.poll_enabled"),
			PollHour:                  v.GetInt("sync.poll_hour"),
			PollMinute:                v.GetInt("sync.poll_minute"),
			PollTimezone:              v.GetString("sync.poll_timezone"),
			Workers:                   v.GetInt("sync.workers"),
			QueueSize:                 v.GetInt("sync.queue_size"),
			JobTimeout:                v.GetDuration("sync.job_timeout"),
			RetryAttempts:             v.GetInt("sync.retry_attempts"),
			RetryDelay:                v.GetDuration("sync.retry_delay"),
		},
		Ops: OpsConfig{
			JWTSecret: v.GetString("ops.jwt_secret"),
			JWTIssuer: v.GetString("ops.jwt_issuer"),
		},
	}

	// poll_hour 0 is a valid setting, so its default is applied only when unset
	if !v.IsSet("sync.poll_hour") {
		cfg.Sync.PollHour = DefaultPollHour
	}
	if !v.IsSet("sync.retry_attempts") {
		cfg.Sync.RetryAttempts = DefaultRetryAttempts
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Scheduling and queue defaults
const (
	DefaultPollHour      = 20
	DefaultPollTimezone  = "Australia/Sydney"
	DefaultRetryAttempts = 3
)

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledgerlink"
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
		cfg.Database.DBName = "ledgerlink"
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
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 600
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ledgerlink"
	}
	if cfg.Telemetry.ProfilingAddress == "" {
		cfg.Telemetry.ProfilingAddress = "http://localhost:4040"
	}
	if cfg.CRM.TimeoutSeconds == 0 {
		cfg.CRM.TimeoutSeconds = 30
	}
	if cfg.Accounting.TimeoutSeconds == 0 {
		cfg.Accounting.TimeoutSeconds = 30
	}
	if len(cfg.Sync.CurrencyFields) == 0 {
		cfg.Sync.CurrencyFields = map[string]string{
			"86536": "deal_currency",
			"78831": "deal_currency_code",
		}
	}
	if cfg.Sync.QuoteStages == nil {
		cfg.Sync.QuoteStages = map[string][]string{}
	}
	if cfg.Sync.DealAmountWriteBackFactor == "" {
		cfg.Sync.DealAmountWriteBackFactor = "1.10"
	}
	if cfg.Sync.DedupTTL == 0 {
		cfg.Sync.DedupTTL = 24 * time.Hour
	}
	if cfg.Sync.PollTimezone == "" {
		cfg.Sync.PollTimezone = DefaultPollTimezone
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 1000
	}
	if cfg.Sync.JobTimeout == 0 {
		cfg.Sync.JobTimeout = 2 * time.Minute
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = 30 * time.Second
	}
	if cfg.Ops.JWTIssuer == "" {
		cfg.Ops.JWTIssuer = "ledgerlink"
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

	if err := validator.New().Struct(c.Sync); err != nil {
		return fmt.Errorf("invalid sync configuration: %w", err)
	}
	if _, err := c.Sync.WriteBackFactor(); err != nil {
		return err
	}

	if c.App.Env == "production" {
		if c.CRM.ClientID == "" || c.CRM.ClientSecret == "" {
			return fmt.Errorf("crm.client_id and crm.client_secret are required in production")
		}
		if len(c.Ops.JWTSecret) < 32 {
			return fmt.Errorf("ops.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// WriteBackFactor parses the deal amount factor
func (s SyncConfig) WriteBackFactor() (decimal.Decimal, error) {
	factor, err := decimal.NewFromString(s.DealAmountWriteBackFactor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sync.deal_amount_writeback_factor: %w", err)
	}
	if !factor.IsPositive() {
		return decimal.Zero, fmt.Errorf("sync.deal_amount_writeback_factor must be positive, got %s", factor)
	}
	return factor, nil
}

// Location loads the poll time zone
func (s SyncConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.PollTimezone)
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

// Addr returns the host:port Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
