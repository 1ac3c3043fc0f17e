package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns Defaults plus the credential fields an operator must
// always supply, so Validate passes.
func validConfig() Config {
	cfg := Defaults()
	cfg.AsianOdds.Username = "trader"
	cfg.AsianOdds.Password = "secret"
	cfg.Betfair.AppKey = "bf-app-key"
	cfg.Betfair.Username = "trader"
	cfg.Betfair.Password = "secret"
	cfg.Betfair.CertFile = "client-2048.crt"
	cfg.Betfair.KeyFile = "client-2048.key"
	return cfg
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults with credentials: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "track"

[betfair]
app_key = "file-key"
username = "fileuser"
password = "filepass"

[feed]
poll_interval = "30s"
sports = ["tennis"]

[tracker]
min_margin = 0.002

[notify]
telegram_chat_id = 123456789
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "track" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "track")
	}
	if cfg.Betfair.AppKey != "file-key" {
		t.Errorf("Betfair.AppKey = %q, want %q", cfg.Betfair.AppKey, "file-key")
	}
	if got := cfg.Feed.PollInterval.Duration; got != 30*time.Second {
		t.Errorf("Feed.PollInterval = %v, want 30s", got)
	}
	if len(cfg.Feed.Sports) != 1 || cfg.Feed.Sports[0] != "tennis" {
		t.Errorf("Feed.Sports = %v, want [tennis]", cfg.Feed.Sports)
	}
	if cfg.Tracker.MinMargin != 0.002 {
		t.Errorf("Tracker.MinMargin = %v, want 0.002", cfg.Tracker.MinMargin)
	}
	if cfg.Notify.TelegramChatID != 123456789 {
		t.Errorf("Notify.TelegramChatID = %v, want 123456789", cfg.Notify.TelegramChatID)
	}

	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}
	if cfg.Report.TopN != 5 {
		t.Errorf("Report.TopN = %v, want default 5", cfg.Report.TopN)
	}
	if got := cfg.Feed.SnapshotInterval.Duration; got != 45*time.Second {
		t.Errorf("Feed.SnapshotInterval = %v, want default 45s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
[betfair]
app_key = "file-key"
`)

	t.Setenv("BACKLAY_MODE", "serve")
	t.Setenv("BACKLAY_BETFAIR_APP_KEY", "env-key")
	t.Setenv("BACKLAY_SERVER_PORT", "9100")
	t.Setenv("BACKLAY_NOTIFY_TELEGRAM_CHAT_ID", "4242424242")
	t.Setenv("BACKLAY_TRACKER_MIN_MARGIN", "0.004")
	t.Setenv("BACKLAY_EXECUTOR_ENABLED", "true")
	t.Setenv("BACKLAY_FEED_POLL_INTERVAL", "20s")
	t.Setenv("BACKLAY_FEED_SPORTS", "soccer, tennis , ,basketball")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "serve" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "serve")
	}
	if cfg.Betfair.AppKey != "env-key" {
		t.Errorf("Betfair.AppKey = %q, env should beat the file", cfg.Betfair.AppKey)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %v, want 9100", cfg.Server.Port)
	}
	if cfg.Notify.TelegramChatID != 4242424242 {
		t.Errorf("Notify.TelegramChatID = %v, want 4242424242", cfg.Notify.TelegramChatID)
	}
	if cfg.Tracker.MinMargin != 0.004 {
		t.Errorf("Tracker.MinMargin = %v, want 0.004", cfg.Tracker.MinMargin)
	}
	if !cfg.Executor.Enabled {
		t.Error("Executor.Enabled = false, want true")
	}
	if got := cfg.Feed.PollInterval.Duration; got != 20*time.Second {
		t.Errorf("Feed.PollInterval = %v, want 20s", got)
	}
	want := []string{"soccer", "tennis", "basketball"}
	if len(cfg.Feed.Sports) != len(want) {
		t.Fatalf("Feed.Sports = %v, want %v", cfg.Feed.Sports, want)
	}
	for i, s := range want {
		if cfg.Feed.Sports[i] != s {
			t.Errorf("Feed.Sports[%d] = %q, want %q", i, cfg.Feed.Sports[i], s)
		}
	}
}

func TestEnvOverrideIgnoresBadValues(t *testing.T) {
	cfg := Defaults()

	t.Setenv("BACKLAY_SERVER_PORT", "not-a-number")
	t.Setenv("BACKLAY_STEAM_ENABLED", "maybe")
	t.Setenv("BACKLAY_FEED_POLL_INTERVAL", "soon")
	t.Setenv("BACKLAY_TRACKER_COMMISSION", "two percent")
	t.Setenv("BACKLAY_REDIS_ADDR", "")

	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %v, bad env value should leave the default", cfg.Server.Port)
	}
	if !cfg.Steam.Enabled {
		t.Error("Steam.Enabled flipped by an unparseable value")
	}
	if got := cfg.Feed.PollInterval.Duration; got != 15*time.Second {
		t.Errorf("Feed.PollInterval = %v, want default 15s", got)
	}
	if cfg.Tracker.Commission != 0.02 {
		t.Errorf("Tracker.Commission = %v, want default 0.02", cfg.Tracker.Commission)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, empty env var should not clear it", cfg.Redis.Addr)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	cfg.Tracker.MaxMargin = cfg.Tracker.MinMargin // band collapsed
	cfg.Executor.VerifyInterval = duration{10 * time.Second}
	cfg.Executor.VerifyTimeout = duration{3 * time.Second}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`unknown mode "turbo" (valid: track, serve, full)`,
		"max_margin must exceed min_margin",
		"verify_interval must be positive and not exceed verify_timeout",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateModeCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "TRACK"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with uppercase mode: %v", err)
	}
}

func TestValidateCredentialSources(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "asianodds no credentials",
			mutate: func(c *Config) {
				c.AsianOdds.Username = ""
				c.AsianOdds.Password = ""
			},
			want: "asianodds: set username/password or encrypted_credentials_path",
		},
		{
			name: "asianodds encrypted file without password",
			mutate: func(c *Config) {
				c.AsianOdds.Username = ""
				c.AsianOdds.Password = ""
				c.AsianOdds.EncryptedCredentialsPath = "creds.enc"
			},
			want: "asianodds: credentials_password is required",
		},
		{
			name: "betfair no credentials",
			mutate: func(c *Config) {
				c.Betfair.Username = ""
				c.Betfair.Password = ""
			},
			want: "betfair: set username/password or encrypted_credentials_path",
		},
		{
			name: "betfair missing cert pair",
			mutate: func(c *Config) {
				c.Betfair.CertFile = ""
			},
			want: "betfair: cert_file and key_file are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error missing %q:\n%v", tt.want, err)
			}
		})
	}
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := validConfig()
	cfg.AsianOdds.Enabled = false
	cfg.AsianOdds.Username = ""
	cfg.AsianOdds.Password = ""
	cfg.AsianOdds.BaseURL = ""
	cfg.Steam.Enabled = false
	cfg.Steam.MinShift = 0
	cfg.Report.Enabled = false
	cfg.Report.TopN = 0
	cfg.Server.Enabled = false
	cfg.Server.Port = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled sections should not be validated: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"AsianOdds.Password":   red.AsianOdds.Password,
		"Betfair.AppKey":       red.Betfair.AppKey,
		"Betfair.Password":     red.Betfair.Password,
		"Postgres.Password":    red.Postgres.Password,
		"Redis.Password":       red.Redis.Password,
		"S3.SecretKey":         red.S3.SecretKey,
		"Server.APIKey":        red.Server.APIKey,
		"Notify.TelegramToken": red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// Empty secrets stay empty rather than pretending one was set.
	if red.Notify.DiscordWebhookURL != "" {
		t.Errorf("DiscordWebhookURL = %q, want empty", red.Notify.DiscordWebhookURL)
	}

	// Non-secrets pass through and the original is untouched.
	if red.Betfair.Username != "trader" {
		t.Errorf("Betfair.Username = %q, want %q", red.Betfair.Username, "trader")
	}
	if cfg.Postgres.Password != "pg-secret" {
		t.Errorf("original mutated: Postgres.Password = %q", cfg.Postgres.Password)
	}

	// Slices are copied, not shared.
	red.Feed.Sports[0] = "cricket"
	if cfg.Feed.Sports[0] == "cricket" {
		t.Error("redacted copy shares the Sports slice with the original")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText(90s): %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", d.Duration)
	}

	if err := d.UnmarshalText([]byte("ninety")); err == nil {
		t.Error("expected error for unparseable duration")
	}

	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q, want %q", out, "1m30s")
	}
}
