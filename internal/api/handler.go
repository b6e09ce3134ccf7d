// Package api exposes the chat workflow over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"salesbot/internal/core"
	"salesbot/pkg"
	"salesbot/src/logger"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

// AdminHeader carries the caller identity set by the admin frontend
const AdminHeader = "X-Admin-ID"

const maxRequestBodySize = 1 << 16

// Pinger is satisfied by *sql.DB and the Redis session store
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the chat endpoints
type Handler struct {
	chat     core.ChatService
	checks   []Pinger
	validate *validator.Validate
	timeout  time.Duration
	origins  []string
}

// NewHandler creates the HTTP handler. timeout bounds each request; the
// workflow answers with its own timeout reply before this fires.
func NewHandler(chat core.ChatService, db Pinger, timeout time.Duration, origins []string) *Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		chat:     chat,
		checks:   []Pinger{db},
		validate: validator.New(),
		timeout:  timeout,
		origins:  origins,
	}
}

// WithHealthCheck adds a dependency that /health must reach
func (h *Handler) WithHealthCheck(p Pinger) *Handler {
	h.checks = append(h.checks, p)
	return h
}

// Routes builds the chi router with the global middleware
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", AdminHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		if h.timeout > 0 {
			r.Use(chiMiddleware.Timeout(h.timeout + 5*time.Second))
		}
		r.Post("/chat", h.postChat)
		r.Post("/sessions/{sessionID}/end", h.endSession)
	})
	return r
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// Error writes a JSON error response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) postChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req pkg.ChatRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(&req); err != nil {
		Error(w, http.StatusBadRequest, "message is required and must be at most 4000 characters")
		return
	}

	resp := h.chat.Handle(r.Context(), req, r.Header.Get(AdminHeader))
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	err := h.chat.EndSession(r.Context(), sessionID, r.Header.Get(AdminHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case pkg.IsKind(err, pkg.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
	default:
		logger.Error().Err(err).Str("session_id", sessionID).Msg("❌ Failed to end session")
		Error(w, http.StatusInternalServerError, "failed to end session")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Health check failed")
			JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs one line per request with zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("🌐 HTTP request")
	})
}
