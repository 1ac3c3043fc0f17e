package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/awestray/backlay/internal/blob/s3"
	"github.com/awestray/backlay/internal/cache/redis"
	"github.com/awestray/backlay/internal/config"
	"github.com/awestray/backlay/internal/crypto"
	"github.com/awestray/backlay/internal/domain"
	"github.com/awestray/backlay/internal/metrics"
	"github.com/awestray/backlay/internal/notify"
	"github.com/awestray/backlay/internal/platform/asianodds"
	"github.com/awestray/backlay/internal/platform/betfair"
	"github.com/awestray/backlay/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	FeedStore        domain.FeedStore
	SnapshotStore    domain.SnapshotStore
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore
	AuditStore       domain.AuditStore

	// Redis-backed coordination
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	PendingCache domain.PendingCache
	CooldownGate domain.CooldownGate
	SignalBus    domain.SignalBus

	// Blob storage; nil unless cold-storage archival is wired.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Venue clients; nil in modes that never touch the venues. Sportsbook is
	// also nil when the aggregator is disabled in config.
	Exchange   *betfair.Client
	Sportsbook *asianodds.Client

	// Notifications. Telegram is the concrete sender, kept so the operator
	// bot can share its connection; nil when Telegram is not configured.
	Notifier *notify.Notifier
	Telegram *notify.TelegramSender

	Metrics *metrics.Metrics
}

// needsVenues returns true for modes that poll and trade against the betting
// venues.
func needsVenues(mode string) bool {
	switch strings.ToLower(mode) {
	case "track", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true when cold-storage archival should be wired.
func needsS3(cfg *config.Config) bool {
	return strings.ToLower(cfg.Mode) == "full" && cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// Postgres and Redis back every mode: serve reads what track wrote, and the
// alert history lives on the Redis stream.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.FeedStore = postgres.NewFeedStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.OpportunityStore = postgres.NewOpportunityStore(pool)
	deps.ExecutionStore = postgres.NewExecutionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.PendingCache = redis.NewPendingCache(redisClient)
	deps.CooldownGate = redis.NewCooldownGate(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.OpportunityStore,
			deps.ExecutionStore,
			deps.SnapshotStore,
			deps.AuditStore,
		)
	}

	// --- Venue clients ---
	if needsVenues(cfg.Mode) {
		if cfg.AsianOdds.Enabled {
			creds, err := crypto.LoadCredentials(crypto.CredentialConfig{
				Username:      cfg.AsianOdds.Username,
				Password:      cfg.AsianOdds.Password,
				EncryptedPath: cfg.AsianOdds.EncryptedCredentialsPath,
				FilePassword:  cfg.AsianOdds.CredentialsPassword,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: sportsbook credentials: %w", err)
			}
			deps.Sportsbook = asianodds.NewClient(cfg.AsianOdds.BaseURL, creds.Username, creds.Password)
		}

		creds, err := crypto.LoadCredentials(crypto.CredentialConfig{
			Username:      cfg.Betfair.Username,
			Password:      cfg.Betfair.Password,
			AppKey:        cfg.Betfair.AppKey,
			EncryptedPath: cfg.Betfair.EncryptedCredentialsPath,
			FilePassword:  cfg.Betfair.CredentialsPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange credentials: %w", err)
		}
		exchange, err := betfair.New(betfair.Config{
			AppKey:   creds.AppKey,
			Username: creds.Username,
			Password: creds.Password,
			CertFile: cfg.Betfair.CertFile,
			KeyFile:  cfg.Betfair.KeyFile,
			LoginURL: cfg.Betfair.LoginURL,
			APIURL:   cfg.Betfair.APIURL,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange client: %w", err)
		}
		deps.Exchange = exchange
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: telegram: %w", err)
		}
		deps.Telegram = tg
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, "backlay"))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger).WithBus(deps.SignalBus)

	return deps, cleanup, nil
}
