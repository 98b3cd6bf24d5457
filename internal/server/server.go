// Package server implements the HTTP server that exposes the chat engine
// via a REST API. The server is started by the `vivoassist serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vivoassist/vivoassist-go/internal/guard"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// defaultConversationID is used when POST /api/chat omits conversation_id.
const defaultConversationID = "default"

// New constructs a Server. factory creates one Conversation per
// conversation_id; reg backs GET /api/manuals; models may be nil.
func New(factory ConversationFactory, reg registry.Registry, models store.ModelsStore, cfg *Config) (*Server, error) {
	return newWithRegistry(factory, reg, models, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// newWithRegistry is the test seam: it accepts an explicit Prometheus
// registry so unit tests stay hermetic.
func newWithRegistry(factory ConversationFactory, reg registry.Registry, models store.ModelsStore, cfg *Config, promReg prometheus.Registerer, promGath prometheus.Gatherer) (*Server, error) {
	if factory == nil {
		return nil, fmt.Errorf("server: conversation factory must not be nil")
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("server: registry must not be empty")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// A turn can wait on LLM generation; keep this generous.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		factory: factory,
		reg:     reg,
		models:  models,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(promReg),
		convs:   make(map[string]*Conversation),
	}

	if cfg.APIKey == "" {
		log.Warn("server: VIVOASSIST_API_KEY not set — API authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	auth := func(next http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, next)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.instrument("chat",
		auth(rl.middleware(http.HandlerFunc(s.handleChat)))))
	mux.Handle("GET /api/manuals", s.instrument("manuals",
		auth(http.HandlerFunc(s.handleManuals))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(promGath, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// conversation returns the Conversation for id, creating it on first use.
func (s *Server) conversation(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.convs[id]; ok {
		return conv, nil
	}
	conv, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("server: create conversation %q: %w", id, err)
	}
	s.convs[id] = conv
	return conv, nil
}

// handleChat handles POST /api/chat. Each request runs one turn against the
// conversation named by conversation_id and returns the display lines.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = defaultConversationID
	}

	conv, err := s.conversation(req.ConversationID)
	if err != nil {
		log.Error("conversation setup failed", slog.Any("error", err))
		http.Error(w, "conversation setup failed", http.StatusInternalServerError)
		return
	}

	// Turns on one conversation run strictly one at a time; the scope reads
	// bracketing the dispatch must see no interleaved turn.
	conv.mu.Lock()
	scopeBefore := conv.Scope.Active()
	start := time.Now()
	lines, err := conv.Engine.Dispatch(r.Context(), req.Message)
	elapsed := time.Since(start)
	scopeAfter := conv.Scope.Active()
	conv.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.turnsTotal.WithLabelValues(outcome).Inc()
	s.metrics.turnDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("turn failed",
			slog.String("conversation_id", req.ConversationID),
			slog.Any("error", err),
		)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	if scopeAfter != scopeBefore {
		s.metrics.scopeSwitchesTotal.Inc()
	}
	for _, line := range lines {
		if line == guard.Refusal {
			s.metrics.guardViolationsTotal.Inc()
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{
		ConversationID: req.ConversationID,
		Lines:          lines,
	}); err != nil {
		log.Error("chat encode error", slog.Any("error", err))
	}
}

// handleManuals handles GET /api/manuals: every registered manual plus the
// model names known from the models cache.
func (s *Server) handleManuals(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := manualsResponse{Manuals: make([]manualInfo, 0, len(s.reg))}
	for _, id := range s.reg.Identifiers() {
		entry := s.reg[id]
		info := manualInfo{ID: entry.Identifier, Title: entry.DisplayTitle}

		if s.models != nil {
			records, err := s.models.Get(r.Context(), id)
			if err != nil {
				log.Error("models cache read failed",
					slog.String("manual", id),
					slog.Any("error", err),
				)
				http.Error(w, "models cache read failed", http.StatusInternalServerError)
				return
			}
			for _, rec := range records {
				info.Models = append(info.Models, rec.Name)
			}
			info.Scanned = len(records) > 0
		}

		resp.Manuals = append(resp.Manuals, info)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("manuals encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// instrument wraps a handler with request count and latency metrics,
// partitioned by the logical handler name rather than the raw URL path.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}
