package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// Dispatcher handles one conversation turn and returns the display lines.
// *chat.Engine satisfies it via Dispatch; tests inject a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, line string) ([]string, error)
}

// ScopeReader reports the manual a conversation's retrieval is currently
// restricted to. *scope.Controller satisfies it; tests inject a fake.
type ScopeReader interface {
	// Active returns the active manual identifier, or "" when unscoped.
	Active() string
}

// Conversation bundles the per-conversation chat engine with its scope state
// so the server can observe scope switches without reaching into the engine.
type Conversation struct {
	// mu serializes turns: the engine and its scope controller are not safe
	// for concurrent use, so one question is fully resolved before the next
	// request on the same conversation_id is dispatched.
	mu sync.Mutex
	// Engine resolves the conversation's turns.
	Engine Dispatcher
	// Scope is the conversation's scope state, read before and after each
	// turn to count switches.
	Scope ScopeReader
}

// ConversationFactory constructs a fresh Conversation with its own scope
// controller and session cache. Called once per new conversation_id.
type ConversationFactory func() (*Conversation, error)

// Server is the HTTP server that exposes the chat engine.
type Server struct {
	// factory creates a Conversation the first time a conversation_id is seen.
	factory ConversationFactory
	// reg is the manual registry served by GET /api/manuals.
	reg registry.Registry
	// models is the models cache read by GET /api/manuals. May be nil, in
	// which case manuals are listed without model names.
	models store.ModelsStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics

	// mu protects convs.
	mu sync.Mutex
	// convs maps conversation_id to its Conversation.
	convs map[string]*Conversation
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// ConversationID identifies the conversation whose scope and history the
	// turn runs against. Defaults to "default" when empty.
	ConversationID string `json:"conversation_id"`
	// Message is the user's input line: a question or a scope command.
	Message string `json:"message"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// ConversationID echoes the conversation the turn ran against.
	ConversationID string `json:"conversation_id"`
	// Lines are the display lines produced by the turn, in order.
	Lines []string `json:"lines"`
}

// manualInfo describes one registered manual in GET /api/manuals responses.
type manualInfo struct {
	// ID is the manual identifier (the PDF filename).
	ID string `json:"id"`
	// Title is the display title derived from the filename.
	Title string `json:"title"`
	// Models lists the model/system names extracted from the manual.
	// Empty until the manual has been scanned.
	Models []string `json:"models,omitempty"`
	// Scanned is true once the models cache holds entries for this manual.
	Scanned bool `json:"scanned"`
}

// manualsResponse is the JSON response for GET /api/manuals.
type manualsResponse struct {
	// Manuals lists every registered manual in identifier order.
	Manuals []manualInfo `json:"manuals"`
}
