package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banano-tipbot/internal/httpserver"
	"banano-tipbot/internal/ledger"
	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/telegram"
	"banano-tipbot/internal/tipping"
	"banano-tipbot/internal/wa"

	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("starting tipbot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repository.Close()

	redisClient := openRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
	}
	locker := accountLocker(cfg, redisClient)

	ledgerClient := ledger.New(ledger.Config{
		Endpoint: cfg.LedgerEndpoint,
		Timeout:  cfg.LedgerTimeout,
	}, logger, metricRegistry, redisClient)

	var handlers httpserver.Handlers
	if cfg.TelegramEnabled() {
		tg, err := telegram.New(cfg.TelegramToken, logger, metricRegistry)
		if err != nil {
			return fmt.Errorf("init telegram client: %w", err)
		}
		botID := cfg.TelegramBotID
		if botID == "" {
			botID = tg.BotID()
		}
		engine := tipping.New(engineConfig(cfg, telegram.Platform, botID), repository, ledgerClient, tg, locker, metricRegistry, logger)
		handlers.TelegramWebhook = telegram.NewWebhookHandler(logger, metricRegistry, cfg.TelegramWebhookSecret, engine)
		logger.Info("telegram transport enabled", "bot", tg.BotName())
	}

	if cfg.WhatsAppEnabled {
		waClient, err := wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()

		engine := tipping.New(engineConfig(cfg, wa.Platform, ""), repository, ledgerClient, waClient, locker, metricRegistry, logger)
		waClient.SetEventProcessor(engine)

		waCtx, waCancel := context.WithCancel(ctx)
		defer waCancel()
		go func() {
			if err := waClient.Start(waCtx); err != nil {
				logger.Error("whatsapp client stopped", "error", err)
				stop()
			}
		}()
	}

	if handlers.TelegramWebhook == nil && !cfg.WhatsAppEnabled {
		logger.Warn("no chat transport configured; serving health and admin endpoints only")
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, handlers, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Redis:      redisClient,
		AdminToken: cfg.AdminToken,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
