// Package server exposes the inbound HTTP surface: the CI build-status
// webhook and the target-package ingress.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"bytemomo/moray/internal/domain"
	"bytemomo/moray/internal/ingest"
	"bytemomo/moray/internal/status"
)

type Server struct {
	pipeline *ingest.Pipeline
	tracker  *status.Tracker
	router   chi.Router
}

func New(pipeline *ingest.Pipeline, tracker *status.Tracker) *Server {
	s := &Server{pipeline: pipeline, tracker: tracker}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/status", s.handleStatus)
	r.Post("/targets", s.handleTarget)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe(addr string) error {
	log.WithField("addr", addr).Info("Starting HTTP server")
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, true)
}

// handleStatus ingests one build-status update. The response collapses to
// boolean success: 200 {"ok":true} or 400 {"ok":false}, no structured error
// body.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var update domain.BuildStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeOK(w, http.StatusBadRequest, false)
		return
	}
	if err := s.tracker.Apply(r.Context(), update); err != nil {
		log.WithError(err).Warn("Rejected build status update")
		writeOK(w, http.StatusBadRequest, false)
		return
	}
	writeOK(w, http.StatusOK, true)
}

// handleTarget accepts a package event and runs ingestion in the background;
// acceptance only acknowledges that the event was enqueued.
func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	var ev domain.PackageEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeOK(w, http.StatusBadRequest, false)
		return
	}

	go func() {
		target, err := s.pipeline.Ingest(context.Background(), ev)
		if err != nil {
			log.WithError(err).WithField("file", ev.FileName).Error("Target ingestion failed")
			return
		}
		log.WithField("target", target.String()).Info("Target ingestion complete")
	}()

	writeOK(w, http.StatusAccepted, true)
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  ww.Status(),
			"elapsed": time.Since(start),
			"reqid":   middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

func writeOK(w http.ResponseWriter, code int, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": ok})
}
