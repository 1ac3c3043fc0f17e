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
// built-in defaults, applies BACKLAY_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BACKLAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── AsianOdds ──
	setBool(&cfg.AsianOdds.Enabled, "BACKLAY_ASIANODDS_ENABLED")
	setStr(&cfg.AsianOdds.BaseURL, "BACKLAY_ASIANODDS_BASE_URL")
	setStr(&cfg.AsianOdds.Username, "BACKLAY_ASIANODDS_USERNAME")
	setStr(&cfg.AsianOdds.Password, "BACKLAY_ASIANODDS_PASSWORD")
	setStr(&cfg.AsianOdds.EncryptedCredentialsPath, "BACKLAY_ASIANODDS_ENCRYPTED_CREDENTIALS_PATH")
	setStr(&cfg.AsianOdds.CredentialsPassword, "BACKLAY_ASIANODDS_CREDENTIALS_PASSWORD")
	setStr(&cfg.AsianOdds.Bookie, "BACKLAY_ASIANODDS_BOOKIE")
	setStr(&cfg.AsianOdds.OddsFormat, "BACKLAY_ASIANODDS_ODDS_FORMAT")
	setDuration(&cfg.AsianOdds.KeepAliveInterval, "BACKLAY_ASIANODDS_KEEP_ALIVE_INTERVAL")

	// ── Betfair ──
	setStr(&cfg.Betfair.AppKey, "BACKLAY_BETFAIR_APP_KEY")
	setStr(&cfg.Betfair.Username, "BACKLAY_BETFAIR_USERNAME")
	setStr(&cfg.Betfair.Password, "BACKLAY_BETFAIR_PASSWORD")
	setStr(&cfg.Betfair.EncryptedCredentialsPath, "BACKLAY_BETFAIR_ENCRYPTED_CREDENTIALS_PATH")
	setStr(&cfg.Betfair.CredentialsPassword, "BACKLAY_BETFAIR_CREDENTIALS_PASSWORD")
	setStr(&cfg.Betfair.CertFile, "BACKLAY_BETFAIR_CERT_FILE")
	setStr(&cfg.Betfair.KeyFile, "BACKLAY_BETFAIR_KEY_FILE")
	setStr(&cfg.Betfair.LoginURL, "BACKLAY_BETFAIR_LOGIN_URL")
	setStr(&cfg.Betfair.APIURL, "BACKLAY_BETFAIR_API_URL")
	setDuration(&cfg.Betfair.KeepAliveInterval, "BACKLAY_BETFAIR_KEEP_ALIVE_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BACKLAY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BACKLAY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BACKLAY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BACKLAY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BACKLAY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BACKLAY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BACKLAY_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BACKLAY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BACKLAY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BACKLAY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BACKLAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BACKLAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BACKLAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BACKLAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BACKLAY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BACKLAY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BACKLAY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BACKLAY_S3_REGION")
	setStr(&cfg.S3.Bucket, "BACKLAY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BACKLAY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BACKLAY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BACKLAY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BACKLAY_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setDuration(&cfg.Feed.PollInterval, "BACKLAY_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.InPlayPollInterval, "BACKLAY_FEED_INPLAY_POLL_INTERVAL")
	setDuration(&cfg.Feed.SnapshotInterval, "BACKLAY_FEED_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Feed.SnapshotRetention, "BACKLAY_FEED_SNAPSHOT_RETENTION")
	setStringSlice(&cfg.Feed.Sports, "BACKLAY_FEED_SPORTS")
	setInt(&cfg.Feed.MaxMarketsPerSport, "BACKLAY_FEED_MAX_MARKETS_PER_SPORT")

	// ── Tracker ──
	setFloat64(&cfg.Tracker.Commission, "BACKLAY_TRACKER_COMMISSION")
	setFloat64(&cfg.Tracker.MinMargin, "BACKLAY_TRACKER_MIN_MARGIN")
	setFloat64(&cfg.Tracker.MaxMargin, "BACKLAY_TRACKER_MAX_MARGIN")
	setFloat64(&cfg.Tracker.AlertMargin, "BACKLAY_TRACKER_ALERT_MARGIN")
	setFloat64(&cfg.Tracker.MinVolume, "BACKLAY_TRACKER_MIN_VOLUME")
	setDuration(&cfg.Tracker.MaxQuoteAge, "BACKLAY_TRACKER_MAX_QUOTE_AGE")
	setDuration(&cfg.Tracker.ScanInterval, "BACKLAY_TRACKER_SCAN_INTERVAL")
	setDuration(&cfg.Tracker.AlertCooldown, "BACKLAY_TRACKER_ALERT_COOLDOWN")
	setDuration(&cfg.Tracker.PendingTTL, "BACKLAY_TRACKER_PENDING_TTL")

	// ── Report ──
	setBool(&cfg.Report.Enabled, "BACKLAY_REPORT_ENABLED")
	setDuration(&cfg.Report.Window, "BACKLAY_REPORT_WINDOW")
	setInt(&cfg.Report.TopN, "BACKLAY_REPORT_TOP_N")

	// ── Executor ──
	setBool(&cfg.Executor.Enabled, "BACKLAY_EXECUTOR_ENABLED")
	setFloat64(&cfg.Executor.BackStake, "BACKLAY_EXECUTOR_BACK_STAKE")
	setFloat64(&cfg.Executor.MinMargin, "BACKLAY_EXECUTOR_MIN_MARGIN")
	setFloat64(&cfg.Executor.SlippageBuffer, "BACKLAY_EXECUTOR_SLIPPAGE_BUFFER")
	setFloat64(&cfg.Executor.LiquidityBuffer, "BACKLAY_EXECUTOR_LIQUIDITY_BUFFER")
	setDuration(&cfg.Executor.VerifyTimeout, "BACKLAY_EXECUTOR_VERIFY_TIMEOUT")
	setDuration(&cfg.Executor.VerifyInterval, "BACKLAY_EXECUTOR_VERIFY_INTERVAL")
	setDuration(&cfg.Executor.LockTTL, "BACKLAY_EXECUTOR_LOCK_TTL")
	setFloat64(&cfg.Executor.ChurnGoal, "BACKLAY_EXECUTOR_CHURN_GOAL")

	// ── Steam ──
	setBool(&cfg.Steam.Enabled, "BACKLAY_STEAM_ENABLED")
	setDuration(&cfg.Steam.Window, "BACKLAY_STEAM_WINDOW")
	setFloat64(&cfg.Steam.MinShift, "BACKLAY_STEAM_MIN_SHIFT")
	setDuration(&cfg.Steam.Cooldown, "BACKLAY_STEAM_COOLDOWN")
	setFloat64(&cfg.Steam.ReAlertDelta, "BACKLAY_STEAM_RE_ALERT_DELTA")
	setFloat64(&cfg.Steam.MinPrice, "BACKLAY_STEAM_MIN_PRICE")
	setFloat64(&cfg.Steam.MaxPrice, "BACKLAY_STEAM_MAX_PRICE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BACKLAY_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "BACKLAY_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "BACKLAY_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BACKLAY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BACKLAY_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "BACKLAY_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "BACKLAY_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "BACKLAY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "BACKLAY_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BACKLAY_NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "BACKLAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BACKLAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BACKLAY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BACKLAY_MODE")
	setStr(&cfg.LogLevel, "BACKLAY_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
