// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/supportrelay/internal/logging"
	"github.com/user/supportrelay/internal/relay"
	"github.com/user/supportrelay/internal/slack"
	"github.com/user/supportrelay/internal/types"
)

// maxBodyBytes bounds an Events API payload.
const maxBodyBytes = 1 << 20

// EventHandler processes one verified-or-not Events API delivery.
type EventHandler interface {
	Handle(ctx context.Context, req relay.Request) relay.Result
}

// Server is the HTTP surface: Slack events, health and metrics.
type Server struct {
	events  EventHandler
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer wires the routes. A nil metrics handler leaves /metrics unrouted.
func NewServer(events EventHandler, metrics http.Handler) *Server {
	s := &Server{
		events:  events,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /slack/events", s.handleSlackEvents)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := slog.With("request_id", string(types.NewRequestID()))
	log.Debug("slack event received", "headers", logging.SafeHeaders(r))

	// The signature covers the exact bytes, so the body is read raw.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("read slack event body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	res := s.events.Handle(r.Context(), relay.Request{
		Body:      body,
		Timestamp: r.Header.Get(slack.HeaderTimestamp),
		Signature: r.Header.Get(slack.HeaderSignature),
	})

	status := res.Outcome.HTTPStatus()
	log.Info("slack event handled",
		"outcome", res.Outcome.String(),
		"status", status,
		"duration", time.Since(start).String(),
	)
	switch res.Outcome {
	case relay.OutcomeChallenge:
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		io.WriteString(w, res.Challenge)
	case relay.OutcomeUnauthorized:
		http.Error(w, "invalid signature", status)
	case relay.OutcomeStored, relay.OutcomeIgnored:
		w.WriteHeader(status)
	default:
		http.Error(w, http.StatusText(status), status)
	}
}
