package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trustmesh/go-signals/models"
	"github.com/trustmesh/go-signals/services"
)

const defaultSignalLimit = 100
const shutdownWait = 5 * time.Second

// Services are the read models and controls exposed over HTTP.
type Services struct {
	Ingestion    *services.IngestionService
	Poller       *services.SourcePoller
	Cursors      *services.CursorStore
	Store        *services.SignalStore
	Recognitions *services.RecognitionCache
	Folder       *services.StateFolder
}

// Server is an operator-facing view of the ingest process: health, counters, cursors and the derived
// per-session views.
type Server struct {
	services Services
	logger   models.Logger
	router   chi.Router
}

func NewServer(svcs Services, logger models.Logger) *Server {
	s := &Server{services: svcs, logger: logger, router: chi.NewRouter()}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.Register(s.router)
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/cursors", s.handleGetCursors)
	r.Delete("/cursors", s.handleResetCursors)
	r.Delete("/cursors/{source}", s.handleResetCursor)
	r.Get("/signals", s.handleSignals)
	r.Get("/recognitions", s.handleRecognitions)
	r.Route("/views/{session}", func(r chi.Router) {
		r.Get("/contacts", s.handleContacts)
		r.Get("/trust", s.handleTrust)
		r.Get("/levels", s.handleLevels)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/recent", s.handleRecent)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until the context is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: models.DefaultHttpWaitTime}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("api: listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statsResponse struct {
	Sources     map[string]models.IngestStats `json:"sources"`
	Recognition models.CacheStats             `json:"recognition"`
	Store       models.StoreSummary           `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.services.Ingestion.Health()
	status := http.StatusOK
	if health.Status == models.HealthStatus_Degraded {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Sources:     s.services.Ingestion.Stats(),
		Recognition: s.services.Recognitions.GetStats(),
		Store:       s.services.Store.Summary(),
	})
}

func (s *Server) handleGetCursors(w http.ResponseWriter, r *http.Request) {
	cursors, err := s.services.Cursors.GetAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cursors)
}

func (s *Server) handleResetCursor(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Poller.ResetSource(r.Context(), chi.URLParam(r, "source")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetCursors(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Poller.ResetAll(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	var events []*models.SignalEvent
	if signalType := r.URL.Query().Get("type"); len(signalType) > 0 {
		events = s.services.Store.GetByType(models.SignalType(signalType))
	} else {
		events = s.services.Store.GetAll()
	}
	limit := queryInt(r, "limit", defaultSignalLimit)
	// Newest last, so keep the tail
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRecognitions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"definitions": s.services.Recognitions.GetAllDefinitions(),
		"cache":       s.services.Recognitions.Debug(),
	})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.services.Folder.BondedContacts(chi.URLParam(r, "session")))
}

func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.services.Folder.TrustStats(chi.URLParam(r, "session")))
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.services.Folder.TrustLevels(chi.URLParam(r, "session")))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.services.Folder.PersonalMetrics(chi.URLParam(r, "session")))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	s.writeJSON(w, http.StatusOK, s.services.Folder.RecentSignals(session, queryInt(r, "limit", defaultSignalLimit)))
}

func queryInt(r *http.Request, key string, fallback int) int {
	if value, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && value >= 0 {
		return value
	}
	return fallback
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorf("api: error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, models.ErrUnknownSource) || errors.Is(err, models.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		s.logger.Errorf("api: %s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
