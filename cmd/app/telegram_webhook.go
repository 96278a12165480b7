package main

import (
	"errors"
	"fmt"

	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/telegram"

	"github.com/spf13/cobra"
)

func runTelegramWebhook(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.TelegramEnabled() {
		return errors.New("TELEGRAM_TOKEN is not set")
	}
	base := webhookBaseURL
	if base == "" {
		base = cfg.TelegramWebhookURL
	}
	if base == "" {
		return errors.New("webhook base URL missing: pass --url or set TELEGRAM_WEBHOOK_URL")
	}

	tg, err := telegram.New(cfg.TelegramToken, logger, metrics.Registry(cfg.MetricsNamespace))
	if err != nil {
		return fmt.Errorf("init telegram client: %w", err)
	}
	return tg.SetWebhook(telegram.WebhookURL(base, cfg.TelegramWebhookSecret))
}
