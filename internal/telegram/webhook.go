package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/tipping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxUpdateSize = 1 << 20

// EventProcessor handles normalized chat events.
type EventProcessor interface {
	HandleEvent(ctx context.Context, ev tipping.Event) (tipping.Outcome, error)
}

// WebhookHandler receives Bot API updates on a path ending in a shared
// secret and forwards them to the processor.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    string
	processor EventProcessor
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, secret string, processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "telegram_webhook"),
		metrics:   metrics,
		secret:    secret,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler. Processing failures answer 500 so
// Telegram delivers the update again.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	secret := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		h.countError("telegram_webhook_auth")
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
	if err != nil {
		h.countError("telegram_webhook")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.countError("telegram_webhook")
		h.logger.Warn("invalid update payload", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ev, ok := ToEvent(update)
	if !ok {
		h.logger.Debug("update ignored", "update_id", update.UpdateID)
		w.WriteHeader(http.StatusOK)
		return
	}

	out, err := h.processor.HandleEvent(r.Context(), ev)
	if err != nil {
		h.logger.Error("failed processing update", "update_id", update.UpdateID, "message_id", ev.MessageID, "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	h.logger.Debug("update processed", "update_id", update.UpdateID, "outcome", out.Kind.String())
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) countError(component string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(component).Inc()
	}
}

// WebhookURL joins the public base URL of the service with the webhook
// route and secret.
func WebhookURL(base, secret string) string {
	return strings.TrimRight(base, "/") + "/webhook/telegram/" + secret
}
