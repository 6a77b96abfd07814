package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/model"
	"github.com/ritzau/emit-scheduler/pkg/pubsub"
	"github.com/ritzau/emit-scheduler/pkg/session"
	"github.com/ritzau/emit-scheduler/pkg/workspace"
)

// Server exposes a session over HTTP.
type Server struct {
	router    *mux.Router
	session   *session.Session
	publisher pubsub.Publisher
	logger    *logging.Logger
}

// affectedResponse is the body of GET /api/affected.
type affectedResponse struct {
	File     string   `json:"file"`
	Affected []string `json:"affected"`
}

// dependentsResponse is the body of GET /api/dependents.
type dependentsResponse struct {
	File       string   `json:"file"`
	Dependents []string `json:"dependents"`
}

// changesRequest is the body of POST /api/changes.
type changesRequest struct {
	Files    []string `json:"files"`
	Rescan   bool     `json:"rescan"`
	Manifest bool     `json:"manifest"`
}

// New creates a server for s. Subscriptions are served from publisher,
// which should be the one the session publishes to.
func New(s *session.Session, publisher pubsub.Publisher) *Server {
	srv := &Server{
		router:    mux.NewRouter(),
		session:   s,
		publisher: publisher,
		logger:    logging.New("server"),
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/{topic:emits|status}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/affected", s.handleAffected).Methods("GET")
	s.router.HandleFunc("/api/dependents", s.handleDependents).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")

	s.router.HandleFunc("/api/emit", s.handleEmit).Methods("POST")
	s.router.HandleFunc("/api/changes", s.handleChanges).Methods("POST")
	s.router.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/api/clear", s.handleClear).Methods("POST")
}

// Handler returns the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	pubsub.Stream(s.publisher, mux.Vars(r)["topic"], w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleAffected(w http.ResponseWriter, r *http.Request) {
	file, ok := fileParam(w, r)
	if !ok {
		return
	}
	affected, err := s.session.Affected(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, affectedResponse{File: file, Affected: affected})
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	file, ok := fileParam(w, r)
	if !ok {
		return
	}
	deps, err := s.session.Dependents(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dependentsResponse{File: file, Dependents: deps})
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	file, ok := fileParam(w, r)
	if !ok {
		return
	}
	report, err := s.session.Emit(r.Context(), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	var req changesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.applyPlan(w, r, session.Plan{Files: req.Files, Rescan: req.Rescan, Manifest: req.Manifest})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.applyPlan(w, r, session.Plan{Rescan: true, Manifest: true})
}

func (s *Server) applyPlan(w http.ResponseWriter, r *http.Request, plan session.Plan) {
	batch, err := s.session.ApplyChanges(r.Context(), plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Graph())
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	found := s.session.Cycles()
	if found == nil {
		found = []model.Cycle{}
	}
	writeJSON(w, http.StatusOK, found)
}

func fileParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	file := r.URL.Query().Get("file")
	if file == "" {
		http.Error(w, "file parameter required", http.StatusBadRequest)
		return "", false
	}
	return file, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workspace.ErrNotInProject):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workspace.ErrManifest):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
