// Package server exposes the webhook ingestion endpoint plus the operational
// surface: status, health, and prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
	"github.com/tpepperobubra-cell/stripe-webhook/webhooks"
)

// WebhookPath is where the provider posts notifications.
const WebhookPath = "/webhooks/stripe"

// Server wires capture, verification, and dispatch behind the HTTP surface.
type Server struct {
	verifier   *webhooks.SignatureVerifier
	dispatcher *webhooks.Dispatcher
	ledger     core.Ledger
	events     core.EventStore
	logger     core.Logger
	cfg        core.ServerConfig
	service    string
}

func New(
	service string,
	cfg core.ServerConfig,
	verifier *webhooks.SignatureVerifier,
	dispatcher *webhooks.Dispatcher,
	ledger core.Ledger,
	events core.EventStore,
	logger core.Logger,
) (*Server, error) {
	if verifier == nil {
		return nil, core.ConfigError("server: signature verifier is required", nil)
	}
	if dispatcher == nil {
		return nil, core.ConfigError("server: dispatcher is required", nil)
	}
	if ledger == nil || events == nil {
		return nil, core.ConfigError("server: ledger and event store are required", nil)
	}
	return &Server{
		verifier:   verifier,
		dispatcher: dispatcher,
		ledger:     ledger,
		events:     events,
		logger:     glog.Ensure(logger),
		cfg:        cfg,
		service:    service,
	}, nil
}

// webhookResponse is the acknowledgement envelope returned to the provider.
type webhookResponse struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	EventID   string `json:"event_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+WebhookPath, instrumentHandler("webhook", s.handleWebhook))
	mux.HandleFunc("GET /status", instrumentHandler("status", s.handleStatus))
	mux.HandleFunc("GET /health", instrumentHandler("health", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// HTTPServer builds the configured http.Server around the route table.
func (s *Server) HTTPServer() *http.Server {
	port := s.cfg.Port
	if port == "" {
		port = "8080"
	}
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	capture, err := webhooks.ReadBody(w, r, s.cfg.MaxBodyBytes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	evt, err := s.verifier.Verify(capture.Body, capture.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, evt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Received:  true,
		Processed: result.Processed,
		EventID:   result.EventID,
		Reason:    result.Reason,
	})
}

type statusResponse struct {
	Service      string              `json:"service"`
	ClaimedCount int                 `json:"claimed_count"`
	EventCount   int                 `json:"event_count"`
	Recent       []statusEventRecord `json:"recent"`
}

type statusEventRecord struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	Outcome    string `json:"outcome"`
	ReceivedAt string `json:"received_at"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimed, err := s.ledger.Count(ctx)
	if err != nil {
		s.writeError(w, r, core.InternalError("server: count claims", err, nil))
		return
	}
	total, err := s.events.Count(ctx)
	if err != nil {
		s.writeError(w, r, core.InternalError("server: count events", err, nil))
		return
	}
	limit := s.cfg.RecentLimit
	if limit <= 0 {
		limit = 50
	}
	recent, err := s.events.Recent(ctx, limit)
	if err != nil {
		s.writeError(w, r, core.InternalError("server: read recent events", err, nil))
		return
	}

	response := statusResponse{
		Service:      s.service,
		ClaimedCount: claimed,
		EventCount:   total,
		Recent:       make([]statusEventRecord, 0, len(recent)),
	}
	for _, record := range recent {
		response.Recent = append(response.Recent, statusEventRecord{
			EventID:    record.EventID,
			EventType:  record.EventType,
			Outcome:    string(record.Outcome),
			ReceivedAt: record.ReceivedAt.UTC().Format(time.RFC3339),
			Error:      record.Error,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.service,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.HTTPStatus(err)
	core.LogWith(r.Context(), s.logger, logLevelFor(status), "request rejected", map[string]any{
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	})
	writeJSON(w, status, webhookResponse{
		Received:  false,
		Processed: false,
		Reason:    err.Error(),
	})
}

func logLevelFor(status int) string {
	if status >= http.StatusInternalServerError {
		return "error"
	}
	return "warn"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
