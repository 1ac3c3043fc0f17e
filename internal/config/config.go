// Package config defines the top-level configuration for the back/lay
// arbitrage service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BACKLAY_* environment variables.
type Config struct {
	AsianOdds AsianOddsConfig `toml:"asianodds"`
	Betfair   BetfairConfig   `toml:"betfair"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Tracker   TrackerConfig   `toml:"tracker"`
	Report    ReportConfig    `toml:"report"`
	Executor  ExecutorConfig  `toml:"executor"`
	Steam     SteamConfig     `toml:"steam"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// AsianOddsConfig holds sportsbook-aggregator API credentials and session
// parameters. Credentials can be given inline or via an encrypted file plus
// password, never both.
type AsianOddsConfig struct {
	Enabled                  bool     `toml:"enabled"`
	BaseURL                  string   `toml:"base_url"`
	Username                 string   `toml:"username"`
	Password                 string   `toml:"password"`
	EncryptedCredentialsPath string   `toml:"encrypted_credentials_path"`
	CredentialsPassword      string   `toml:"credentials_password"`
	Bookie                   string   `toml:"bookie"`
	OddsFormat               string   `toml:"odds_format"`
	KeepAliveInterval        duration `toml:"keep_alive_interval"`
}

// BetfairConfig holds exchange API credentials. Login uses the certificate
// endpoint, so cert_file and key_file must point at the uploaded client pair.
type BetfairConfig struct {
	AppKey                   string   `toml:"app_key"`
	Username                 string   `toml:"username"`
	Password                 string   `toml:"password"`
	EncryptedCredentialsPath string   `toml:"encrypted_credentials_path"`
	CredentialsPassword      string   `toml:"credentials_password"`
	CertFile                 string   `toml:"cert_file"`
	KeyFile                  string   `toml:"key_file"`
	LoginURL                 string   `toml:"login_url"`
	APIURL                   string   `toml:"api_url"`
	KeepAliveInterval        duration `toml:"keep_alive_interval"`
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

// S3Config holds S3-compatible object storage parameters for cold archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds market-data ingest parameters.
type FeedConfig struct {
	PollInterval       duration `toml:"poll_interval"`
	InPlayPollInterval duration `toml:"inplay_poll_interval"`
	SnapshotInterval   duration `toml:"snapshot_interval"`
	SnapshotRetention  duration `toml:"snapshot_retention"`
	Sports             []string `toml:"sports"`
	MaxMarketsPerSport int      `toml:"max_markets_per_sport"`
}

// TrackerConfig holds opportunity detection parameters. Margins are
// fractions of 1, so 0.005 means 0.5%.
type TrackerConfig struct {
	Commission   float64  `toml:"commission"`
	MinMargin    float64  `toml:"min_margin"`
	MaxMargin    float64  `toml:"max_margin"`
	AlertMargin  float64  `toml:"alert_margin"`
	MinVolume    float64  `toml:"min_volume"`
	MaxQuoteAge  duration `toml:"max_quote_age"`
	ScanInterval duration `toml:"scan_interval"`
	// AlertCooldown suppresses repeat alerts for the same outcome after one
	// fires. PendingTTL bounds how long an alerted opportunity stays
	// triggerable by the operator.
	AlertCooldown duration `toml:"alert_cooldown"`
	PendingTTL    duration `toml:"pending_ttl"`
}

// ReportConfig holds daily summary parameters.
type ReportConfig struct {
	Enabled bool `toml:"enabled"`
	// Window is how long after UTC midnight the automatic report may still
	// fire; outside it the day is skipped rather than reported late.
	Window duration `toml:"window"`
	TopN   int      `toml:"top_n"`
}

// ExecutorConfig holds execution saga parameters.
type ExecutorConfig struct {
	// Enabled is the kill switch: when false, a trigger logs a dry run and
	// stops before any venue call.
	Enabled         bool     `toml:"enabled"`
	BackStake       float64  `toml:"back_stake"`
	MinMargin       float64  `toml:"min_margin"`
	SlippageBuffer  float64  `toml:"slippage_buffer"`
	LiquidityBuffer float64  `toml:"liquidity_buffer"`
	VerifyTimeout   duration `toml:"verify_timeout"`
	VerifyInterval  duration `toml:"verify_interval"`
	LockTTL         duration `toml:"lock_ttl"`
	ChurnGoal       float64  `toml:"churn_goal"`
}

// SteamConfig holds steam-move detection parameters.
type SteamConfig struct {
	Enabled      bool     `toml:"enabled"`
	Window       duration `toml:"window"`
	MinShift     float64  `toml:"min_shift"`
	Cooldown     duration `toml:"cooldown"`
	ReAlertDelta float64  `toml:"re_alert_delta"`
	MinPrice     float64  `toml:"min_price"`
	MaxPrice     float64  `toml:"max_price"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per client per rate_limit_window on the API.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    int64    `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values. A TOML
// file and BACKLAY_* environment variables are merged on top of these.
func Defaults() Config {
	return Config{
		AsianOdds: AsianOddsConfig{
			Enabled:           true,
			BaseURL:           "https://webapi.asianodds88.com/AsianOddsService",
			Bookie:            "PIN",
			OddsFormat:        "00",
			KeepAliveInterval: duration{200 * time.Second},
		},
		Betfair: BetfairConfig{
			LoginURL:          "https://identitysso-cert.betfair.com/api/certlogin",
			APIURL:            "https://api.betfair.com/exchange/betting/rest/v1.0",
			KeepAliveInterval: duration{time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "backlay-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			PollInterval:       duration{15 * time.Second},
			InPlayPollInterval: duration{10 * time.Second},
			SnapshotInterval:   duration{45 * time.Second},
			SnapshotRetention:  duration{24 * time.Hour},
			Sports:             []string{"soccer", "tennis", "basketball"},
			MaxMarketsPerSport: 100,
		},
		Tracker: TrackerConfig{
			Commission:    0.02,
			MinMargin:     0.001,
			MaxMargin:     0.05,
			AlertMargin:   0.005,
			MinVolume:     100,
			MaxQuoteAge:   duration{60 * time.Second},
			ScanInterval:  duration{15 * time.Second},
			AlertCooldown: duration{10 * time.Minute},
			PendingTTL:    duration{60 * time.Second},
		},
		Report: ReportConfig{
			Enabled: true,
			Window:  duration{5 * time.Minute},
			TopN:    5,
		},
		Executor: ExecutorConfig{
			Enabled:         false,
			BackStake:       5,
			MinMargin:       0.005,
			SlippageBuffer:  0.005,
			LiquidityBuffer: 0.05,
			VerifyTimeout:   duration{3 * time.Second},
			VerifyInterval:  duration{500 * time.Millisecond},
			LockTTL:         duration{2 * time.Minute},
			ChurnGoal:       5000,
		},
		Steam: SteamConfig{
			Enabled:      true,
			Window:       duration{15 * time.Minute},
			MinShift:     0.03,
			Cooldown:     duration{30 * time.Minute},
			ReAlertDelta: 0.02,
			MinPrice:     1.10,
			MaxPrice:     10.0,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "steam", "execution", "escalation", "report", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	// track runs ingest, tracking, alerting, the operator bot and the API.
	"track": true,
	// serve runs only the read-side HTTP/WS API.
	"serve": true,
	// full is track plus the retention pipeline and archival.
	"full": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: track, serve, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// AsianOdds credentials must come from exactly one source when enabled.
	if c.AsianOdds.Enabled {
		if c.AsianOdds.BaseURL == "" {
			errs = append(errs, "asianodds: base_url must not be empty")
		}
		inline := c.AsianOdds.Username != "" || c.AsianOdds.Password != ""
		encrypted := c.AsianOdds.EncryptedCredentialsPath != ""
		if !inline && !encrypted {
			errs = append(errs, "asianodds: set username/password or encrypted_credentials_path")
		}
		if encrypted && c.AsianOdds.CredentialsPassword == "" {
			errs = append(errs, "asianodds: credentials_password is required when encrypted_credentials_path is set")
		}
	}

	// Betfair is always required: it is both the feed source and the lay venue.
	if c.Betfair.AppKey == "" {
		errs = append(errs, "betfair: app_key must not be empty")
	}
	inlineBF := c.Betfair.Username != "" || c.Betfair.Password != ""
	encryptedBF := c.Betfair.EncryptedCredentialsPath != ""
	if !inlineBF && !encryptedBF {
		errs = append(errs, "betfair: set username/password or encrypted_credentials_path")
	}
	if encryptedBF && c.Betfair.CredentialsPassword == "" {
		errs = append(errs, "betfair: credentials_password is required when encrypted_credentials_path is set")
	}
	if c.Betfair.CertFile == "" || c.Betfair.KeyFile == "" {
		errs = append(errs, "betfair: cert_file and key_file are required for certificate login")
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

	// S3 is only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Feed
	if c.Feed.PollInterval.Duration <= 0 {
		errs = append(errs, "feed: poll_interval must be positive")
	}
	if c.Feed.SnapshotInterval.Duration <= 0 {
		errs = append(errs, "feed: snapshot_interval must be positive")
	}
	if len(c.Feed.Sports) == 0 {
		errs = append(errs, "feed: at least one sport must be configured")
	}

	// Tracker
	if c.Tracker.Commission < 0 || c.Tracker.Commission >= 1 {
		errs = append(errs, fmt.Sprintf("tracker: commission must be in [0, 1), got %v", c.Tracker.Commission))
	}
	if c.Tracker.MinMargin <= 0 {
		errs = append(errs, "tracker: min_margin must be > 0")
	}
	if c.Tracker.MaxMargin <= c.Tracker.MinMargin {
		errs = append(errs, "tracker: max_margin must exceed min_margin")
	}
	if c.Tracker.AlertMargin < c.Tracker.MinMargin {
		errs = append(errs, "tracker: alert_margin must not be below min_margin")
	}
	if c.Tracker.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "tracker: max_quote_age must be positive")
	}
	if c.Tracker.ScanInterval.Duration <= 0 {
		errs = append(errs, "tracker: scan_interval must be positive")
	}

	// Executor
	if c.Executor.BackStake <= 0 {
		errs = append(errs, "executor: back_stake must be > 0")
	}
	if c.Executor.MinMargin <= 0 {
		errs = append(errs, "executor: min_margin must be > 0")
	}
	if c.Executor.SlippageBuffer < 0 {
		errs = append(errs, "executor: slippage_buffer must be >= 0")
	}
	if c.Executor.LiquidityBuffer < 0 || c.Executor.LiquidityBuffer >= 1 {
		errs = append(errs, "executor: liquidity_buffer must be in [0, 1)")
	}
	if c.Executor.VerifyTimeout.Duration <= 0 {
		errs = append(errs, "executor: verify_timeout must be positive")
	}
	if c.Executor.VerifyInterval.Duration <= 0 || c.Executor.VerifyInterval.Duration > c.Executor.VerifyTimeout.Duration {
		errs = append(errs, "executor: verify_interval must be positive and not exceed verify_timeout")
	}
	if c.Executor.LockTTL.Duration <= 0 {
		errs = append(errs, "executor: lock_ttl must be positive")
	}

	// Steam
	if c.Steam.Enabled {
		if c.Steam.Window.Duration <= 0 {
			errs = append(errs, "steam: window must be positive")
		}
		if c.Steam.MinShift <= 0 {
			errs = append(errs, "steam: min_shift must be > 0")
		}
		if c.Steam.MinPrice >= c.Steam.MaxPrice {
			errs = append(errs, "steam: min_price must be below max_price")
		}
	}

	// Report
	if c.Report.Enabled {
		if c.Report.Window.Duration <= 0 {
			errs = append(errs, "report: window must be positive")
		}
		if c.Report.TopN < 1 {
			errs = append(errs, "report: top_n must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 1 {
			errs = append(errs, "server: rate_limit must be >= 1")
		}
		if c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
