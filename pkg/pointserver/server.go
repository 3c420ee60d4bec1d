// Package pointserver publishes the points of a running pipeline to
// display clients.
//
// Routes:
//
//	GET  /points[?since=N]  JSON snapshot, optionally only idx > N
//	GET  /state             pipeline state and counters
//	POST /pause             {"paused": true|false}
//	POST /reset             clear points and restart numbering
//	GET  /ws                websocket; one JSON point per message
//	GET  /healthz           liveness
//	GET  /metrics           Prometheus exposition, when configured
package pointserver

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/stream"
)

// Pipeline is the view of a live pipeline the server needs.
// *stream.Pipeline implements it.
type Pipeline interface {
	Sink() *stream.Sink
	State() stream.State
	Paused() bool
	Pause(on bool)
	Reset()
	Stats() (admitted, dropped int64)
}

// Config configures a Server. Zero values select defaults.
type Config struct {
	// Addr is the listen address for ListenAndServe. Default ":8080".
	Addr string

	// AllowedOrigins lists origins allowed by CORS and the websocket
	// handshake. Empty allows any origin.
	AllowedOrigins []string

	// Backend and Model are reported by /state.
	Backend string
	Model   string

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	Metrics *observe.Metrics
	Logger  *slog.Logger

	// WriteTimeout bounds each websocket write. Default 5s.
	WriteTimeout time.Duration

	// PingInterval is the websocket keepalive period. Default 30s.
	PingInterval time.Duration

	// SubscriberBuffer is the per-client point queue. A client that falls
	// further behind misses points. Default 64.
	SubscriberBuffer int
}

// Server serves one pipeline.
type Server struct {
	cfg      Config
	p        Pipeline
	logger   *slog.Logger
	handler  http.Handler
	upgrader websocket.Upgrader

	closeOnce sync.Once
	done      chan struct{}
}

// New returns a Server for p.
func New(p Pipeline, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		p:      p,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	router := mux.NewRouter()
	router.HandleFunc("/points", s.handlePoints).Methods(http.MethodGet)
	router.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	router.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost)
	router.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
	s.handler = c.Handler(observe.Middleware(cfg.Metrics)(router))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on Config.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("pointserver: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and
// closes websocket clients. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("point server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.shutdownClients()
		return fmt.Errorf("pointserver: serve: %w", err)
	case <-ctx.Done():
	}

	s.shutdownClients()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("pointserver: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdownClients() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// PointsResponse is the body of GET /points.
type PointsResponse struct {
	Points []stream.Point `json:"points"`
}

// StateResponse is the body of GET /state and POST /pause.
type StateResponse struct {
	State    string `json:"state"`
	Paused   bool   `json:"paused"`
	Backend  string `json:"backend,omitempty"`
	Model    string `json:"model,omitempty"`
	Admitted int64  `json:"admitted"`
	Dropped  int64  `json:"dropped"`
	NextIdx  int64  `json:"nextIdx"`
}

// PauseRequest is the body of POST /pause.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	points := s.p.Sink().Snapshot()
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: %q", v)
			return
		}
		i, _ := slices.BinarySearchFunc(points, since+1, func(p stream.Point, idx int64) int {
			return cmp.Compare(p.Idx, idx)
		})
		points = points[i:]
	}
	if points == nil {
		points = []stream.Point{}
	}
	writeJSON(w, http.StatusOK, PointsResponse{Points: points})
}

func (s *Server) state() StateResponse {
	admitted, dropped := s.p.Stats()
	return StateResponse{
		State:    s.p.State().String(),
		Paused:   s.p.Paused(),
		Backend:  s.cfg.Backend,
		Model:    s.cfg.Model,
		Admitted: admitted,
		Dropped:  dropped,
		NextIdx:  s.p.Sink().NextIdx(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	s.p.Pause(req.Paused)
	observe.With(r.Context(), s.logger).Info("pipeline paused", "paused", req.Paused)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.p.Reset()
	observe.With(r.Context(), s.logger).Info("pipeline reset")
	w.WriteHeader(http.StatusNoContent)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}
