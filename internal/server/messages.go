package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sapien-ai/sapien-go/internal/logging"
	"github.com/sapien-ai/sapien-go/memory"
)

// handleAddMessage handles POST /api/messages. The message is persisted
// before the response is written; embedding and vector indexing continue in
// the background, so a 201 does not mean the message is searchable yet.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	role := memory.Role(req.Role)
	if !role.Valid() {
		http.Error(w, "role must be one of: user, assistant, system", http.StatusBadRequest)
		return
	}

	id, err := s.client.AddMessage(r.Context(), req.SessionID, role, req.Content, req.Timestamp)
	if err != nil {
		log.Error("add message failed",
			slog.String("session_id", req.SessionID),
			slog.Any("error", err),
		)
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(addMessageResponse{ID: id}); err != nil {
		log.Error("message encode error", slog.Any("error", err))
	}
}

// handleContext handles GET /api/context. Query parameters:
//
//	session — the session to search (required)
//	q       — the query text to rank against (required)
//	k       — maximum number of results (optional, defaults to the client's top-k)
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q query parameter is required", http.StatusBadRequest)
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "k must be a non-negative integer", http.StatusBadRequest)
			return
		}
		k = n
	}

	msgs, err := s.client.GetContext(r.Context(), sessionID, query, k)
	if err != nil {
		log.Error("context retrieval failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		http.Error(w, "failed to retrieve context", http.StatusInternalServerError)
		return
	}

	resp := contextResponse{
		SessionID: sessionID,
		Query:     query,
		Messages:  make([]contextMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, contextMessage{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("context encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// instrument wraps h to record request count and latency for the named
// handler in the server's Prometheus metrics.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		h.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	})
}
