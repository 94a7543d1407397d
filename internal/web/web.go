package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"edtassist/internal/config"
	"edtassist/internal/ics"
	appLog "edtassist/internal/log"
	"edtassist/internal/model"
	"edtassist/internal/mutation"
	"edtassist/internal/query"
	"edtassist/internal/store"
	"edtassist/internal/tools"
)

// DefaultEventsTTL bounds how long a user's normalized events are served
// from memory.
const DefaultEventsTTL = 30 * time.Second

// maxBodyBytes caps tool-call argument payloads.
const maxBodyBytes = 64 << 10

// Deps are the collaborators a Server serves.
type Deps struct {
	Reader   *store.Reader
	Syncer   *ics.Syncer
	Query    *query.Engine
	Mutation *mutation.Engine
}

// Server provides the HTTP API over schedules and operations.
type Server struct {
	cfg        *config.Config
	reader     *store.Reader
	syncer     *ics.Syncer
	dispatcher *tools.Dispatcher
	router     chi.Router

	// EventsTTL may be changed before the server starts handling requests.
	EventsTTL time.Duration

	// In-memory cache for /events responses, keyed by user. Entries are
	// dropped on refresh and after mutating tool calls.
	eventsMu    sync.RWMutex
	eventsCache map[string]*eventsCache
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:         cfg,
		reader:      deps.Reader,
		syncer:      deps.Syncer,
		EventsTTL:   DefaultEventsTTL,
		eventsCache: make(map[string]*eventsCache),
	}
	s.dispatcher = tools.NewDispatcher(deps.Query, deps.Mutation, tools.Hooks{AfterMutation: s.invalidate})
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", s.handleTools)
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/events", s.handleEvents)
			r.Get("/stats", s.handleStats)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/tools/{name}", s.handleToolCall)
		})
	})
	s.router = r
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Refresh re-syncs a user's feed and drops their cached events.
func (s *Server) Refresh(ctx context.Context, userID string) (ics.SyncResult, error) {
	res, err := s.syncer.Sync(ctx, userID)
	if res.UserID != "" {
		s.invalidate(res.UserID)
	}
	return res, err
}

func (s *Server) invalidate(userID string) {
	s.eventsMu.Lock()
	delete(s.eventsCache, userID)
	s.eventsMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tools.Describe())
}

// eventsResponse is the JSON response shape for /api/users/{user}/events.
type eventsResponse struct {
	UserID   string        `json:"user_id"`
	Timezone string        `json:"timezone"`
	Events   []model.Event `json:"events"`
	Count    int           `json:"count"`
}

// eventsCache holds a cached events response and its timestamp.
type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

// handleEvents returns the user's normalized events, lectures and
// revisions, with display colors.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	s.eventsMu.RLock()
	ec := s.eventsCache[userID]
	s.eventsMu.RUnlock()
	if ec != nil && time.Since(ec.updatedAt) < s.EventsTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	if !s.reader.Store().Exists(userID) {
		writeError(w, http.StatusNotFound, "no timetable for this user; refresh it first")
		return
	}

	events := s.reader.Load(userID)
	resp := eventsResponse{
		UserID:   userID,
		Timezone: s.reader.Location().String(),
		Events:   events,
		Count:    len(events),
	}

	s.eventsMu.Lock()
	s.eventsCache[userID] = &eventsCache{resp: resp, updatedAt: time.Now()}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.reader.Stats(userID))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	res, err := s.Refresh(r.Context(), userID)
	if err != nil {
		var fe *ics.FetchError
		if errors.As(err, &fe) {
			writeError(w, http.StatusBadGateway, fe.Error())
			return
		}
		if errors.Is(err, ics.ErrEmptyFeed) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		appLog.Error("refresh failed", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if !tools.Has(name) {
		writeError(w, http.StatusNotFound, "unknown function "+name)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "arguments too large")
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.CallJSON(r.Context(), userID, name, body))
}

func userParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := store.NormalizeUserID(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return userID, true
}

// requestLogger logs one line per request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
