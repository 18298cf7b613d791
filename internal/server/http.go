// Package server exposes the agent's local HTTP surface: event ingestion, the resolved device
// identity, health and Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/identity"
	"fleet-telemetry/agent/internal/logging"
)

// MaxEventBytes bounds the body of POST /v1/events.
const MaxEventBytes = 1 << 20

// Emitter queues events for background delivery.
type Emitter interface {
	InsertEvent(name, data, correlationID string)
	InsertEventPayload(name string, payload any)
	Pending() int
}

// IdentitySource resolves the device identity.
type IdentitySource interface {
	Snapshot(ctx context.Context) identity.Snapshot
}

// EventRequest is the body of POST /v1/events. With a CorrelationID the event keeps that id: a JSON
// string in Data is the pre-serialized payload, any other value is used in its compact JSON form.
// Without one, Data is the payload and a correlation id is generated.
type EventRequest struct {
	Name          string          `json:"name"`
	Data          json.RawMessage `json:"data"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server serves the local HTTP API.
type Server struct {
	emitter    Emitter
	identity   IdentitySource
	logger     zerolog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New builds the server. gatherer backs /metrics and reg receives the request counter; both may be nil.
func New(addr string, emitter Emitter, ident IdentitySource, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		emitter:  emitter,
		identity: ident,
		logger:   logger.With().Str("component", "http").Logger(),
	}

	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "agent_http_requests_total",
		Help: "HTTP requests served by the agent, by handler and status code",
	}, []string{"handler", "code"})
	instrument := func(name string, h http.HandlerFunc) http.Handler {
		return promhttp.InstrumentHandlerCounter(requests.MustCurryWith(prometheus.Labels{"handler": name}), s.logRequests(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/events", instrument("events", s.handleEvents))
	mux.Handle("GET /v1/identity", instrument("identity", s.handleIdentity))
	mux.Handle("GET /healthz", instrument("healthz", s.handleHealth))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.handler = mux

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logging.Std(logger, "http"),
	}
	return s
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxEventBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "event body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "missing event name")
		return
	}

	if req.CorrelationID != "" {
		s.emitter.InsertEvent(req.Name, rawPayload(req.Data), req.CorrelationID)
	} else {
		s.emitter.InsertEventPayload(req.Name, req.Data)
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "queued",
		"pending": s.emitter.Pending(),
	})
}

// rawPayload returns the string held by data, or data itself in compact form. Missing data is "null".
func rawPayload(data json.RawMessage) string {
	if len(data) == 0 {
		return "null"
	}
	var str string
	if json.Unmarshal(data, &str) == nil {
		return str
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.identity.Snapshot(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.emitter.Pending(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("encoding JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
