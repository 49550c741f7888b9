package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/cssclass"
	"github.com/vango-dev/statekit/pkg/state"
)

// Server is the HTTP/WebSocket front of one or more state stores.
type Server struct {
	config   *ServerConfig
	upgrader websocket.Upgrader
	router   chi.Router

	mu           sync.RWMutex
	shared       *state.Manager
	sharedConfig *configstore.Store
	sharedCSS    *cssclass.Projector

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	httpServer *http.Server
}

// New creates a Server. A nil config uses DefaultServerConfig.
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	config = config.withDefaults()
	config.Logger = config.Logger.With("component", "server")

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		sessions: make(map[string]*Session),
	}
	s.shared, s.sharedConfig = config.NewStore()
	s.sharedCSS = cssclass.New(s.shared, s.sharedConfig, cssclass.WithLogger(config.Logger))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/state", func(r chi.Router) {
		r.Get("/", s.handleGetState)
		r.Post("/", s.handleSetState)
		r.Get("/{key}", s.handleGetKey)
	})
	r.Get("/ws", s.HandleWebSocket)
	if s.config.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the shared store served over plain HTTP.
func (s *Server) Store() *state.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shared
}

// Reload swaps the store factory. The shared store is rebuilt from the new
// factory and seeded with the current shared state; open sessions keep
// their stores, new sessions use the new factory.
func (s *Server) Reload(factory StoreFactory) {
	if factory == nil {
		return
	}
	shared, sharedConfig := factory()

	s.mu.Lock()
	shared.Seed(s.shared.GetAll())
	oldCSS := s.sharedCSS
	s.shared, s.sharedConfig = shared, sharedConfig
	s.sharedCSS = cssclass.New(shared, sharedConfig, cssclass.WithLogger(s.config.Logger))
	s.config.NewStore = factory
	s.mu.Unlock()

	oldCSS.Close()
	s.config.Logger.Info("stores reloaded")
}

// SessionCount returns the number of open WebSocket sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	st, css := s.shared.GetAll(), s.sharedCSS.Classes()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, &Message{Type: TypeState, State: st, Classes: css})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	val, ok := s.Store().GetAll()[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, &Message{Type: TypeError, Error: "unknown key " + key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": val})
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var query state.Values
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeJSON(w, http.StatusBadRequest, &Message{Type: TypeError, Error: "invalid JSON body: " + err.Error()})
		return
	}

	s.mu.RLock()
	store, css := s.shared, s.sharedCSS
	s.mu.RUnlock()

	res, err := store.Set(r.Context(), query)
	msg := resultMessage(res, err, css.Classes())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, msg)
	case stderrors.Is(err, state.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, msg)
	default:
		writeJSON(w, http.StatusInternalServerError, msg)
	}
}

// HandleWebSocket upgrades the request and starts a session.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Warn("websocket upgrade failed", "error", err)
		if s.config.Metrics != nil {
			s.config.Metrics.WebSocketError("upgrade")
		}
		return
	}

	s.mu.RLock()
	config := *s.config
	s.mu.RUnlock()

	sess := newSession(conn, &config, s.removeSession)
	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.SessionOpened()
	}
	sess.logger.Debug("session started", "remote", r.RemoteAddr)
	sess.Start()
}

func (s *Server) removeSession(sess *Session) {
	s.sessionsMu.Lock()
	_, ok := s.sessions[sess.ID]
	delete(s.sessions, sess.ID)
	s.sessionsMu.Unlock()

	if ok && s.config.Metrics != nil {
		s.config.Metrics.SessionClosed()
	}
	sess.logger.Debug("session closed")
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = s.newHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		s.config.Logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
}

// Shutdown closes every session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.sessionsMu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.config.Logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.config.Logger.Info("server shutdown complete")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
