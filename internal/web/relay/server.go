package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nickmessing/firemodel/internal/orm/list"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/record"
	"github.com/nickmessing/firemodel/internal/orm/schema"
	"github.com/nickmessing/firemodel/internal/orm/session"
	"github.com/nickmessing/firemodel/internal/orm/watch"
	"github.com/nickmessing/firemodel/internal/web/middleware"
)

// Config holds relay server configuration
type Config struct {
	// Addr is the listen address (e.g., ":8787")
	Addr string

	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header of websocket upgrades
	CheckOrigin func(r *http.Request) bool

	// AllowedOrigins lists the origins granted CORS access to the HTTP
	// routes. "*" allows any origin, "*.example.com" any subdomain.
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default relay configuration
func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:8787",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server exposes a session over HTTP and relays its model events to
// websocket clients
type Server struct {
	sess     *session.Session
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
	router   chi.Router
	logger   *zap.Logger

	// watchers started over websockets, by hash, with the clients holding them
	watchMu sync.Mutex
	holders map[string]map[*Client]bool
}

// NewServer creates a relay server for sess
func NewServer(sess *session.Session, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = defaults.CheckOrigin
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = defaults.AllowedOrigins
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	s := &Server{
		sess:    sess,
		hub:     NewHub(logger),
		cfg:     cfg,
		logger:  logger,
		holders: make(map[string]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	s.hub.RegisterHandler(TypeWatch, s.handleWatch)
	s.hub.RegisterHandler(TypeUnwatch, s.handleUnwatch)
	s.hub.OnDisconnect(s.releaseAll)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger, "/healthz"),
		middleware.CORS(cfg.AllowedOrigins),
	)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleUpgrade)
	r.Get("/records/{model}", s.handleList)
	r.Get("/records/{model}/{id}", s.handleRecord)
	s.router = r
	return s
}

// Hub returns the server's hub
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler { return s.router }

// Start subscribes the hub to the session's dispatcher and runs it until
// ctx is done. The returned function unsubscribes.
func (s *Server) Start(ctx context.Context) func() {
	l := s.hub.Listener()
	s.sess.Dispatcher().On(l)
	go s.hub.Run(ctx)
	return func() { s.sess.Dispatcher().Off(l) }
}

// ListenAndServe serves HTTP on the configured address until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := s.Start(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay shutdown error: %w", err)
		}
		return nil
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, s.hub)
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	// the request context ends when the handler returns
	go client.readPump(context.WithoutCancel(r.Context()))
}

type healthResponse struct {
	Status   string               `json:"status"`
	Clients  int                  `json:"clients"`
	Rooms    int                  `json:"rooms"`
	Watchers int                  `json:"watchers"`
	Models   []string             `json:"models"`
	Schema   *schema.RegistryStats `json:"schema"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Clients:  s.hub.ClientCount(),
		Rooms:    s.hub.RoomCount(),
		Watchers: watch.Count(s.sess),
		Models:   s.sess.Registry().List(),
		Schema:   s.sess.Registry().GetStats(),
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := record.Get(r.Context(), s.sess, chi.URLParam(r, "model"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	l, err := list.All(r.Context(), s.sess, chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modelName": l.ModelName(),
		"dbPath":    l.DBPath(),
		"records":   l.Data(),
	})
}

type watchRequest struct {
	Model string `json:"model"`
	ID    string `json:"id,omitempty"`
}

type watchResponse struct {
	Hash string `json:"hash"`
	Room string `json:"room"`
}

// handleWatch starts a record watcher (id given) or a list watcher and
// joins the client to the model's room before the initial events arrive
func (s *Server) handleWatch(ctx context.Context, client *Client, message *Message) error {
	var req watchRequest
	if err := json.Unmarshal(message.Data, &req); err != nil {
		return fmt.Errorf("invalid watch request: %w", err)
	}

	sch, err := s.sess.Resolve(req.Model)
	if err != nil {
		return err
	}

	var w *watch.Watch
	if req.ID != "" {
		w, err = watch.Record(s.sess, req.Model, req.ID)
	} else {
		w, err = watch.List(s.sess, req.Model)
	}
	if err != nil {
		return err
	}

	room := sch.Plural()
	s.hub.JoinRoom(client, room)

	s.watchMu.Lock()
	hash, err := w.Start(ctx)
	if err == nil {
		if s.holders[hash] == nil {
			s.holders[hash] = make(map[*Client]bool)
		}
		s.holders[hash][client] = true
	}
	s.watchMu.Unlock()
	if err != nil {
		return err
	}
	return client.SendJSON(TypeWatching, watchResponse{Hash: hash, Room: room})
}

// handleUnwatch releases the client's hold on a watcher. The watcher stops
// once no client holds it.
func (s *Server) handleUnwatch(ctx context.Context, client *Client, message *Message) error {
	var req watchResponse
	if err := json.Unmarshal(message.Data, &req); err != nil {
		return fmt.Errorf("invalid unwatch request: %w", err)
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if !s.holders[req.Hash][client] {
		return fmt.Errorf("%w: %q is not watched by this client", ormerr.ErrForbidden, req.Hash)
	}
	if err := s.release(req.Hash, client); err != nil {
		return err
	}
	return client.SendJSON(TypeUnwatched, watchResponse{Hash: req.Hash})
}

// releaseAll drops every hold of a disconnected client
func (s *Server) releaseAll(client *Client) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for hash, clients := range s.holders {
		if !clients[client] {
			continue
		}
		if err := s.release(hash, client); err != nil {
			s.logger.Warn("failed to stop watcher",
				zap.String("client", client.ID),
				zap.String("hash", hash),
				zap.Error(err))
		}
	}
}

// release must be called with watchMu held
func (s *Server) release(hash string, client *Client) error {
	clients := s.holders[hash]
	delete(clients, client)
	if len(clients) > 0 {
		return nil
	}
	delete(s.holders, hash)
	if err := watch.Stop(s.sess, hash); err != nil && !errors.Is(err, ormerr.ErrForbidden) {
		return err
	}
	s.logger.Debug("relay watcher stopped", zap.String("hash", hash))
	return nil
}

// WatcherHolders returns the number of clients holding the watcher hash
func (s *Server) WatcherHolders(hash string) int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.holders[hash])
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ormerr.ErrUnknownModel), errors.Is(err, ormerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ormerr.ErrNoDatabase):
		return http.StatusServiceUnavailable
	case errors.Is(err, ormerr.ErrNotAllowed), errors.Is(err, ormerr.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := ormerr.Code(err)
	if code == "" {
		code = "internal"
	}
	writeJSON(w, statusFor(err), errorResponse{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
