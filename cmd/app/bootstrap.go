package main

import (
	"context"
	"fmt"
	"log/slog"

	"banano-tipbot/internal/cache"
	"banano-tipbot/internal/config"
	"banano-tipbot/internal/logging"
	"banano-tipbot/internal/repo"
	"banano-tipbot/internal/tipping"
	"banano-tipbot/migrations"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// commandContext is the command's context, or Background when the command
// is invoked directly rather than through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

// openRepository connects the configured store and brings its schema up to
// date.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Repository, error) {
	var (
		repository repo.Repository
		err        error
	)
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		repository, err = repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	default:
		repository, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		repository.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated", "driver", cfg.DatabaseDriver)
	return repository, nil
}

// openRedis returns nil when no Redis address is configured.
func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.Redis {
	if cfg.RedisAddr == "" {
		return nil
	}
	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}
	return redisClient
}

// accountLocker serializes per-account work inside the process and, when
// Redis is available, across replicas.
func accountLocker(cfg *config.Config, redisClient *cache.Redis) tipping.Locker {
	local := tipping.NewLocalLocker()
	if redisClient == nil {
		return local
	}
	return tipping.ChainLockers(local, cache.NewLocker(redisClient, cfg.LockTTL))
}

func engineConfig(cfg *config.Config, platform, botID string) tipping.Config {
	return tipping.Config{
		Platform:      platform,
		MinTip:        cfg.MinTipAmount,
		Wallet:        cfg.WalletID,
		Decimals:      cfg.LedgerDecimals,
		Symbol:        cfg.CurrencySymbol,
		Triggers:      cfg.TipTriggers,
		LedgerTimeout: cfg.LedgerTimeout,
		BotName:       cfg.BotName,
		BotID:         botID,
		AddressPrefix: cfg.AddressPrefix,
	}
}
