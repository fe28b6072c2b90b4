// Package server is the HTTP boundary in front of the detection core. It
// owns request decoding, error-to-status mapping, rate limiting and
// metrics; all detection semantics live in the detection package.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hannes/gliner-gate/config"
	"github.com/hannes/gliner-gate/detection"
)

// Server serves the detection API.
type Server struct {
	config       *config.Config
	registry     *detection.Registry
	orchestrator *detection.Orchestrator
	metrics      *Metrics
	limiter      *rate.Limiter
	sentryOn     bool
	httpServer   *http.Server
}

// NewServer wires the orchestrator, metrics and rate limiter for the given
// registry.
func NewServer(cfg *config.Config, registry *detection.Registry) *Server {
	metrics := NewMetrics()
	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	return &Server{
		config:       cfg,
		registry:     registry,
		orchestrator: detection.NewOrchestrator(registry, metrics, cfg.BatchWorkers),
		metrics:      metrics,
		limiter:      limiter,
		sentryOn:     cfg.SentryDSN != "",
	}
}

// Routes returns the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/detect", s.handleDetect)
	mux.HandleFunc("/api/detect/batch", s.handleDetectBatch)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[Server] Starting detection service on port %s", s.config.Port)
	log.Printf("[Server] Registered detectors: %v", s.registry.Names())

	s.httpServer = &http.Server{
		Addr:         s.config.Port,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type detectRequest struct {
	Text        string   `json:"text"`
	Detectors   []string `json:"detectors"`
	EntityTypes []string `json:"entity_types"`
	Threshold   *float64 `json:"threshold"`
}

type detectResponse struct {
	Entities []detection.Entity `json:"entities"`
}

type batchDetectRequest struct {
	Texts       []string `json:"texts"`
	Detectors   []string `json:"detectors"`
	EntityTypes []string `json:"entity_types"`
	Threshold   *float64 `json:"threshold"`
}

type batchDetectResponse struct {
	Entities [][]detection.Entity `json:"entities"`
}

type errorMessage struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest("detect")
	if !s.admit(w, r) {
		return
	}

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	requestID := uuid.NewString()
	detectorNames := s.effectiveDetectors(req.Detectors)
	log.Printf("[Server] detect request=%s detectors=%v text_len=%d", requestID, detectorNames, len(req.Text))

	entities, err := s.orchestrator.Detect(r.Context(), req.Text, detectorNames, req.EntityTypes, req.Threshold)
	if err != nil {
		s.failRequest(w, requestID, err)
		return
	}
	if entities == nil {
		entities = []detection.Entity{}
	}
	s.writeJSON(w, detectResponse{Entities: entities})
}

func (s *Server) handleDetectBatch(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest("detect_batch")
	if !s.admit(w, r) {
		return
	}

	var req batchDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	requestID := uuid.NewString()
	detectorNames := s.effectiveDetectors(req.Detectors)
	log.Printf("[Server] detect/batch request=%s detectors=%v texts=%d", requestID, detectorNames, len(req.Texts))

	results, err := s.orchestrator.DetectBatch(r.Context(), req.Texts, detectorNames, req.EntityTypes, req.Threshold)
	if err != nil {
		s.failRequest(w, requestID, err)
		return
	}
	for i := range results {
		if results[i] == nil {
			results[i] = []detection.Entity{}
		}
	}
	s.writeJSON(w, batchDetectResponse{Entities: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"detectors": s.registry.Names(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	type detectorInfo struct {
		Type             string   `json:"type"`
		DefaultEntities  []string `json:"default_entities"`
		DefaultThreshold float64  `json:"default_threshold"`
	}
	detectors := make(map[string]detectorInfo, len(s.config.Detectors))
	for name, dc := range s.config.Detectors {
		detectors[name] = detectorInfo{
			Type:             dc.Type,
			DefaultEntities:  dc.DefaultEntities,
			DefaultThreshold: dc.DefaultThreshold,
		}
	}
	s.writeJSON(w, map[string]interface{}{
		"default_detectors": s.config.DefaultDetectors,
		"detectors":         detectors,
	})
}

// admit enforces method and rate limit on inference endpoints.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return false
	}
	return true
}

// effectiveDetectors falls back to the configured defaults when the request
// names none.
func (s *Server) effectiveDetectors(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return s.config.DefaultDetectors
}

// failRequest maps a pipeline error to an HTTP status and reports server
// faults to sentry.
func (s *Server) failRequest(w http.ResponseWriter, requestID string, err error) {
	status, code := statusForError(err)
	log.Printf("[Server] request=%s failed (%d %s): %v", requestID, status, code, err)
	if status >= http.StatusInternalServerError && s.sentryOn {
		sentry.CaptureException(err)
	}
	s.writeError(w, status, code, err.Error())
}

// statusForError maps the detection error taxonomy onto HTTP statuses.
func statusForError(err error) (int, string) {
	var (
		confErr *detection.ConfigurationError
		valErr  *detection.ValidationError
		provErr *detection.ProviderError
	)
	switch {
	case errors.As(err, &confErr):
		return http.StatusBadRequest, "unknown_detector"
	case errors.As(err, &valErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &provErr):
		return http.StatusBadGateway, "inference_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorMessage{Error: code, Detail: detail}); err != nil {
		log.Printf("[Server] Failed to write error response: %v", err)
	}
}
