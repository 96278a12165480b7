package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"banano-tipbot/internal/cache"
	"banano-tipbot/internal/metrics"
	"banano-tipbot/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultTipListLimit = 50
	maxTipListLimit     = 500
	readyTimeout        = 3 * time.Second
)

// Handlers groups optional HTTP handlers to mount.
type Handlers struct {
	TelegramWebhook http.Handler
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Repository repo.Repository
	Redis      *cache.Redis
	AdminToken string
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handlers   Handlers
	deps       Dependencies
	basePath   string
}

// New creates a new HTTP server listening on addr with health and metrics endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		handlers: handlers,
		basePath: normaliseBasePath(basePath),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", server.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/tips", server.handleListTips)

	if handlers.TelegramWebhook != nil {
		mux.Handle("/webhook/telegram/", handlers.TelegramWebhook)
	}

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// SetDependencies makes dependencies accessible to handlers.
func (s *Server) SetDependencies(deps Dependencies) {
	s.deps = deps
}

// Handler returns the root handler, base path included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true
	if s.deps.Repository != nil {
		checks["store"] = "ok"
		if err := s.deps.Repository.Ping(ctx); err != nil {
			s.logger.Warn("store not ready", "error", err)
			checks["store"] = err.Error()
			ready = false
		}
	}
	if s.deps.Redis != nil {
		checks["redis"] = "ok"
		if err := s.deps.Redis.Ping(ctx); err != nil {
			s.logger.Warn("redis not ready", "error", err)
			checks["redis"] = err.Error()
			ready = false
		}
	}

	status := "ok"
	if !ready {
		status = "unavailable"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
		return
	}
	writeJSON(w, map[string]any{"status": status, "checks": checks})
}

type tipRecordView struct {
	MessageID       string    `json:"message_id"`
	RecipientIndex  int       `json:"recipient_index"`
	Kind            string    `json:"kind"`
	SenderID        string    `json:"sender_id"`
	SenderAccount   string    `json:"sender_account"`
	ReceiverID      string    `json:"receiver_id,omitempty"`
	ReceiverAccount string    `json:"receiver_account"`
	Amount          string    `json:"amount_raw"`
	Status          string    `json:"status"`
	TxHash          *string   `json:"tx_hash,omitempty"`
	Error           *string   `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// handleListTips lists pending or failed records for manual reconciliation.
func (s *Server) handleListTips(w http.ResponseWriter, r *http.Request) {
	if s.deps.AdminToken == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.deps.Repository == nil {
		http.Error(w, "repository unavailable", http.StatusServiceUnavailable)
		return
	}

	status := repo.TipStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = repo.TipFailed
	case repo.TipPending, repo.TipFailed, repo.TipSent:
	default:
		http.Error(w, "status must be pending, failed or sent", http.StatusBadRequest)
		return
	}
	limit := defaultTipListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTipListLimit)
	}

	records, err := s.deps.Repository.ListTipRecordsByStatus(r.Context(), status, limit)
	if err != nil {
		s.logger.Error("failed listing tip records", "error", err, "status", status)
		http.Error(w, "failed listing tip records", http.StatusInternalServerError)
		return
	}

	views := make([]tipRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, tipRecordView{
			MessageID:       rec.MessageID,
			RecipientIndex:  rec.RecipientIndex,
			Kind:            string(rec.Kind),
			SenderID:        rec.SenderID,
			SenderAccount:   rec.SenderAccount,
			ReceiverID:      rec.ReceiverID,
			ReceiverAccount: rec.ReceiverAccount,
			Amount:          rec.Amount,
			Status:          string(rec.Status),
			TxHash:          rec.TxHash,
			Error:           rec.Error,
			CreatedAt:       rec.CreatedAt,
			UpdatedAt:       rec.UpdatedAt,
		})
	}
	writeJSON(w, map[string]any{
		"status":  string(status),
		"count":   len(views),
		"records": views,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
