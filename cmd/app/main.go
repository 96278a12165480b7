package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tipbot",
	Short: "BANANO tip bot for group chats",
	Long: `Runs the tip bot: chat transports, ledger node client and the HTTP surface.

Without a subcommand the service starts as with "serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the configured chat transports",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var telegramWebhookCmd = &cobra.Command{
	Use:   "telegram-webhook",
	Short: "Register the Telegram webhook URL with the Bot API",
	Long: `Registers <base>/webhook/telegram/<TELEGRAM_WEBHOOK_SECRET> as the bot's webhook.

The base URL defaults to TELEGRAM_WEBHOOK_URL.`,
	RunE: runTelegramWebhook,
}

var webhookBaseURL string

func init() {
	telegramWebhookCmd.Flags().StringVar(&webhookBaseURL, "url", "", "Public base URL of this service (overrides TELEGRAM_WEBHOOK_URL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(telegramWebhookCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
