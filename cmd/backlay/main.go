// Command backlay is the arbitrage system's entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// The encrypt-credentials subcommand builds an encrypted venue login file for
// the config's encrypted_credentials_path fields.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/awestray/backlay/internal/app"
	"github.com/awestray/backlay/internal/config"
	"github.com/awestray/backlay/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-credentials" {
		if err := runEncryptCredentials(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-credentials: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger; replaced once the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("backlay starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("backlay stopped")
}

// runEncryptCredentials writes an encrypted venue login file. Both passwords
// are read from stdin so they never land in shell history.
func runEncryptCredentials(args []string) error {
	fs := flag.NewFlagSet("encrypt-credentials", flag.ContinueOnError)
	username := fs.String("username", "", "venue account username")
	appKey := fs.String("app-key", "", "application key, for venues that need one")
	out := fs.String("out", "credentials.json.enc", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	in := bufio.NewReader(os.Stdin)
	fmt.Fprint(os.Stderr, "account password: ")
	password, err := readLine(in)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, "file password: ")
	filePassword, err := readLine(in)
	if err != nil {
		return err
	}

	blob, err := crypto.EncryptCredentials(crypto.Credentials{
		Username: *username,
		Password: password,
		AppKey:   *appKey,
	}, filePassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil && s == "" {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
