package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"banano-tipbot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Platform labels events and metrics coming from Telegram.
const Platform = "telegram"

// Client sends messages through the Bot API.
type Client struct {
	bot     *tgbotapi.BotAPI
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New authenticates against the Bot API with token.
func New(token string, logger *slog.Logger, metrics *metrics.Metrics) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return newClient(bot, logger, metrics), nil
}

// NewWithEndpoint is New against a custom Bot API server, such as a local
// bot API instance.
func NewWithEndpoint(token, endpoint string, httpClient *http.Client, logger *slog.Logger, metrics *metrics.Metrics) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return newClient(bot, logger, metrics), nil
}

func newClient(bot *tgbotapi.BotAPI, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	c := &Client{
		bot:     bot,
		logger:  logger.With("component", "telegram"),
		metrics: metrics,
	}
	c.logger.Info("telegram bot authorized", "username", bot.Self.UserName, "id", bot.Self.ID)
	return c
}

// BotID returns the bot's own user id.
func (c *Client) BotID() string {
	return strconv.FormatInt(c.bot.Self.ID, 10)
}

// BotName returns the bot's username.
func (c *Client) BotName() string {
	return c.bot.Self.UserName
}

// SendText posts text to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.send(ctx, "chat", chatID, text)
}

// SendDirect posts text to the private chat with a user. In Telegram the
// private chat id equals the user id.
func (c *Client) SendDirect(ctx context.Context, userID, text string) error {
	return c.send(ctx, "direct", userID, text)
}

func (c *Client) send(ctx context.Context, target, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = true
	if _, err := c.bot.Send(msg); err != nil {
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("telegram_send").Inc()
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	if c.metrics != nil {
		c.metrics.OutgoingMessages.WithLabelValues(Platform, target).Inc()
	}
	return nil
}

// SetWebhook registers url as the bot's webhook.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	c.logger.Info("telegram webhook registered", "url", url)
	return nil
}
