// Command socialbet is the entry point for the socialbet exchange. It loads
// configuration, validates it, sets up signal handling, and starts the
// application in the configured mode.
//
// Usage:
//
//	socialbet -config config.toml
//	socialbet seal-key -out key.json
//
// seal-key encrypts the key in SOCIALBET_WALLET_PRIVATE_KEY under
// SOCIALBET_WALLET_KEY_PASSWORD for use as wallet.encrypted_key_path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/socialbet/internal/app"
	"github.com/alanyoungcy/socialbet/internal/config"
	"github.com/alanyoungcy/socialbet/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "seal-key" {
		if err := sealKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "seal-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

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

	logger.Info("socialbet starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("socialbet stopped")
}

func sealKey(args []string) error {
	fs := flag.NewFlagSet("seal-key", flag.ContinueOnError)
	out := fs.String("out", "exchange-key.json", "where to write the encrypted key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw := os.Getenv("SOCIALBET_WALLET_PRIVATE_KEY")
	password := os.Getenv("SOCIALBET_WALLET_KEY_PASSWORD")
	if raw == "" || password == "" {
		return errors.New("set SOCIALBET_WALLET_PRIVATE_KEY and SOCIALBET_WALLET_KEY_PASSWORD")
	}

	data, err := crypto.SealKey(raw, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return err
	}
	signer, err := crypto.OpenKey(data, password)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s for %s\n", *out, signer.Address().Hex())
	return nil
}
