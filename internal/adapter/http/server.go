// Package http exposes the service's operational endpoints and a read-only
// XML view of the stored documents.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes health, readiness, metrics, and document endpoints.
type Server struct {
	httpServer    *http.Server
	jurisdictions domain.JurisdictionStore
	events        domain.RoadEventStore
	renderer      *domain.Renderer
	logger        *slog.Logger
}

// NewServer creates the HTTP server. Document routes render straight from
// the stores; writes only ever happen through the pipeline.
func NewServer(addr string, ready ReadinessChecker, jurisdictions domain.JurisdictionStore, events domain.RoadEventStore, renderer *domain.Renderer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		jurisdictions: jurisdictions,
		events:        events,
		renderer:      renderer,
		logger:        logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/jurisdictions/{slug}", s.handleJurisdiction)
	mux.HandleFunc("GET /api/jurisdictions/{slug}/events", s.handleEvents)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleJurisdiction(w http.ResponseWriter, r *http.Request) {
	jur, err := s.jurisdictions.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	prefs := domain.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	s.writeXML(w, s.renderer.RenderJurisdiction(jur, prefs))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jur, err := s.jurisdictions.GetBySlug(ctx, r.PathValue("slug"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	events, err := s.events.ListByJurisdiction(ctx, jur.Slug)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	prefs := domain.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	root := etree.NewElement("events")
	for _, ev := range events {
		root.AddChild(s.renderer.RenderEvent(ev, jur, prefs))
	}
	s.writeXML(w, root)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.logger.Error("document lookup failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (s *Server) writeXML(w http.ResponseWriter, el *etree.Element) {
	body, err := xmldoc.Serialize(el)
	if err != nil {
		s.logger.Error("serialize response failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body)) //nolint:errcheck // best-effort response body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
