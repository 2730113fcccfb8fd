// Package server exposes the stored analysis records over a read-only
// HTTP API for the presentation layer. It never triggers analysis; the
// records it serves are whatever the last run persisted.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JGarfunkel/ordinizer-sub000/internal/docstore"
)

// Server serves the records API.
type Server struct {
	store *docstore.Store
	port  int
	srv   *http.Server
}

func New(store *docstore.Store, port int) *Server {
	return &Server{store: store, port: port}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/domains", s.handleDomains)
	r.Get("/api/v1/domains/{domain}/questions", s.handleQuestions)
	r.Get("/api/v1/domains/{domain}/jurisdictions", s.handleJurisdictions)
	r.Get("/api/v1/domains/{domain}/jurisdictions/{jurisdiction}", s.handleRecord)
	return r
}

// Start listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("server: listening", zap.Int("port", s.port))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDomains(w http.ResponseWriter, _ *http.Request) {
	domains, err := s.store.Domains()
	if err != nil {
		zap.L().Error("server: list domains", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	questions, err := s.store.Catalog(domain)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "unknown domain")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"domain": domain, "questions": questions})
}

func (s *Server) handleJurisdictions(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	jurisdictions, err := s.store.Jurisdictions(domain)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "unknown domain")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"domain": domain, "jurisdictions": jurisdictions})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	jurisdiction := chi.URLParam(r, "jurisdiction")

	rec, err := s.store.Record(domain, jurisdiction)
	if err != nil {
		zap.L().Error("server: read record",
			zap.String("domain", domain),
			zap.String("jurisdiction", jurisdiction),
			zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "record unreadable")
		return
	}
	if rec == nil {
		s.respondError(w, http.StatusNotFound, "no analysis record")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
