package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sapien-ai/sapien-go/memory"
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
	// If nil, slog.Default is used.
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
	// MetricsRegistry is where server metrics are registered. If nil,
	// prometheus.DefaultRegisterer is used. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. If nil,
	// prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// memoryClient is the interface the handlers call to reach the memory layer.
// *memory.Client satisfies it; tests inject a fake.
type memoryClient interface {
	// AddMessage persists a message and returns its identifier.
	AddMessage(ctx context.Context, sessionID string, role memory.Role, content string, timestamp time.Time) (string, error)
	// GetContext returns the k most semantically relevant messages in the session.
	GetContext(ctx context.Context, sessionID, query string, k int) ([]memory.Message, error)
}

// Server is the HTTP server that exposes the memory client over REST.
type Server struct {
	// client is the memory client that handles all message operations.
	client memoryClient
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// addMessageRequest is the JSON body for POST /api/messages.
type addMessageRequest struct {
	// SessionID groups messages into a conversation.
	SessionID string `json:"sessionId"`
	// Role is the author of the message: "user", "assistant", or "system".
	Role string `json:"role"`
	// Content is the raw message text.
	Content string `json:"content"`
	// Timestamp is an optional RFC 3339 creation time. Defaults to now.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// addMessageResponse is the JSON response for POST /api/messages.
type addMessageResponse struct {
	// ID is the identifier assigned to the stored message.
	ID string `json:"id"`
}

// contextMessage is one retrieved message in a contextResponse.
type contextMessage struct {
	// ID is the message identifier.
	ID string `json:"id"`
	// Role is the author of the message.
	Role string `json:"role"`
	// Content is the raw message text.
	Content string `json:"content"`
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// contextResponse is the JSON response for GET /api/context.
type contextResponse struct {
	// SessionID is the session that was searched.
	SessionID string `json:"sessionId"`
	// Query is the query text the results are ranked against.
	Query string `json:"query"`
	// Messages is the result list, most relevant first. Always present,
	// empty when nothing matched.
	Messages []contextMessage `json:"messages"`
}
