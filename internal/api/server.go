package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/config"
	"grimm.is/pfw/internal/events"
	"grimm.is/pfw/internal/i18n"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/metrics"
	"grimm.is/pfw/internal/ratelimit"
	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/store"
)

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns the default server limits.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.DefaultReadTimeout,
		WriteTimeout:      config.DefaultWriteTimeout,
		IdleTimeout:       config.DefaultIdleTimeout,
		ShutdownTimeout:   config.DefaultShutdownTimeout,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      config.DefaultMaxBodyBytes,
	}
}

// ServerConfigFrom converts the server block of the config file.
func ServerConfigFrom(c *config.ServerConfig) ServerConfig {
	sc := DefaultServerConfig()
	sc.ReadTimeout, sc.WriteTimeout, sc.IdleTimeout, sc.ShutdownTimeout = c.Timeouts()
	if c.MaxBodyBytes > 0 {
		sc.MaxBodyBytes = c.MaxBodyBytes
	}
	return sc
}

// Server handles API requests.
type Server struct {
	store   store.Store
	hub     *events.Hub
	logger  *logging.Logger
	metrics *metrics.Registry
	limiter *ratelimit.Limiter
	keys    *KeyChecker
	cors    *cors.Cors
	mode    rules.Mode
	clock   clock.Clock
	cfg     ServerConfig

	ws *WSManager

	mux *http.ServeMux
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Store   store.Store // required
	Hub     *events.Hub
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Limiter *ratelimit.Limiter // nil disables rate limiting
	Keys    *KeyChecker        // nil leaves mutations open
	Config  ServerConfig

	// CORSOrigins lists allowed origins; empty allows all.
	CORSOrigins []string
	// Mode selects how strictly incoming rules are validated.
	Mode  rules.Mode
	Clock clock.Clock
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewIsolated()
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	cfg := opts.Config
	if cfg == (ServerConfig{}) {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		store:   opts.Store,
		hub:     hub,
		logger:  logger,
		metrics: reg,
		limiter: opts.Limiter,
		keys:    opts.Keys,
		cors:    newCORS(opts.CORSOrigins),
		mode:    opts.Mode,
		clock:   clock.OrReal(opts.Clock),
		cfg:     cfg,
	}
	s.ws = NewWSManager(hub, logger, reg)
	s.initRoutes()
	return s, nil
}

// Hub returns the event hub mutations are published on.
func (s *Server) Hub() *events.Hub {
	return s.hub
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	s.handle("GET /{$}", s.handleRoot)
	s.handle("GET /healthz", s.handleHealth)

	s.handle("GET /rules", s.handleListRules)
	s.handle("POST /rules", s.handleCreateRule)
	s.handle("GET /rules/{ref}", s.handleGetRule)
	s.handle("PUT /rules/{ref}", s.handleReplaceRule)
	s.handle("DELETE /rules/{ref}", s.handleDeleteRule)

	s.handle("GET /ws/rules", s.ws.HandleRules)
	mux.Handle("GET /metrics", s.metrics.Handler())
}

// handle registers h and records pattern as the request's route label.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if info := requestInfoFrom(r.Context()); info != nil {
			info.route = pattern
		}
		h(w, r)
	})
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	// Chain: AccessLog -> CORS -> i18n -> RateLimit -> Auth -> MaxBody -> Mux
	var h http.Handler = s.mux
	h = s.maxBodyMiddleware(s.cfg.MaxBodyBytes)(h)
	h = s.authMiddleware(h)
	h = s.rateLimitMiddleware(h)
	h = i18n.Middleware(h)
	h = s.cors.Handler(h)
	return s.accessLogger(h)
}

// HTTPServer builds the http.Server that Serve runs.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
}

// Serve runs the API on ln until ctx is canceled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.ws.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}
