// Package server exposes the bot's HTTP surface: the LINE webhook endpoint
// and a health check. Everything behind the endpoints is delegated to the
// bot handler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"kaiwabot/internal/bot"
	"kaiwabot/internal/line"
	"kaiwabot/internal/logger"
)

// eventTimeout bounds the handling of a single inbound event, including all
// store and LLM round trips.
const eventTimeout = 25 * time.Second

var webhookLogger = logger.NewStyledLogger("Webhook")

// HealthInfo is the /health response payload.
type HealthInfo struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	HasSecret   bool      `json:"has_channel_secret"`
	HasToken    bool      `json:"has_channel_token"`
	HasRichMenu bool      `json:"has_rich_menu"`
}

// Server wires the webhook and health endpoints.
type Server struct {
	lineClient *line.Client
	handler    *bot.Handler
	health     HealthInfo
}

// New creates a Server delivering webhook events to handler.
func New(lineClient *line.Client, handler *bot.Handler, health HealthInfo) *Server {
	return &Server{
		lineClient: lineClient,
		handler:    handler,
		health:     health,
	}
}

// Register wires the HTTP routes onto the supplied mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/webhook", withRequestLogging(http.HandlerFunc(s.handleWebhook)))
	mux.Handle("/health", withRequestLogging(http.HandlerFunc(s.handleHealth)))
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(started).String(),
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.lineClient.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			webhookLogger.Warn("Signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		webhookLogger.Error("Parsing failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	webhookLogger.Debug("Delivery received", "events", len(events))

	// Events are independent deliveries; handle them concurrently. Per-user
	// ordering is preserved by the session manager's per-user locking.
	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			s.handler.HandleEvent(ctx, event)
		}()
	}
	wg.Wait()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.health
	health.Status = "ok"
	health.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		logger.Error("Failed to write health response", "error", err)
	}
}
