// Package server assembles the gateway's HTTP surface.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/proxy/dialect"
	"mercator-hq/eventgate/pkg/proxy/handlers"
	"mercator-hq/eventgate/pkg/proxy/middleware"
	"mercator-hq/eventgate/pkg/security/auth"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/telemetry/health"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
	"mercator-hq/eventgate/pkg/telemetry/tracing"
	"mercator-hq/eventgate/pkg/usage"
)

// BuildInfo is served on the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Dependencies are the components the routes are wired to. Feed, Collector
// and Health are optional.
type Dependencies struct {
	Store     store.Store
	Auth      *auth.Resolver
	Catalog   handlers.CatalogResolver
	Forwarder handlers.Forwarder
	Feed      *usage.Feed
	Collector *metrics.Collector
	Health    *health.Checker
	Build     BuildInfo
}

// Server is the gateway HTTP server.
type Server struct {
	cfg        *config.Config
	deps       Dependencies
	handler    http.Handler
	httpServer *http.Server
	tlsConfig  *tls.Config
	logger     *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a server and builds its router. tlsConfig may be nil.
func New(cfg *config.Config, deps Dependencies, tlsConfig *tls.Config) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		tlsConfig: tlsConfig,
		logger:    slog.Default().With("component", "server"),
		ready:     make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is canceled
// or the listener fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.ListenAddress, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.readyOnce.Do(func() { close(s.ready) })
	s.mu.Unlock()

	s.logger.Info("starting gateway server",
		"address", ln.Addr().String(),
		"base_path", s.cfg.Server.BasePath,
		"tls_enabled", s.tlsConfig != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.setRunning(false)
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown drains in-flight requests for at most server.shutdown_timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	running, srv := s.isRunning, s.httpServer
	s.mu.RUnlock()
	if !running || srv == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		err = fmt.Errorf("server shutdown error: %w", serr)
		s.logger.Error("error during server shutdown", "error", serr)
	}
	s.setRunning(false)
	s.logger.Info("gateway server stopped")
	return err
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) setRunning(v bool) {
	s.mu.Lock()
	s.isRunning = v
	s.mu.Unlock()
}

func (s *Server) routes() http.Handler {
	cfg := s.cfg
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.Recovery,
		middleware.RequestID,
		tracing.Middleware,
		middleware.Logging,
		middleware.Metrics(s.deps.Collector),
		middleware.CORS(&cfg.Server.CORS),
	)

	s.operatorRoutes(r)

	base := strings.TrimRight(cfg.Server.BasePath, "/")
	if base == "" {
		r.Group(s.gatewayRoutes)
	} else {
		r.Route(base, s.gatewayRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w, r)
	})
	return r
}

// operatorRoutes mounts the probes, metrics and the admin usage feed
// outside the base path.
func (s *Server) operatorRoutes(r chi.Router) {
	cfg := s.cfg

	if hc := &cfg.Telemetry.Health; hc.Enabled && s.deps.Health != nil {
		r.Get(hc.LivenessPath, s.deps.Health.LivenessHandler())
		r.Get(hc.ReadinessPath, s.deps.Health.ReadinessHandler())
		b := s.deps.Build
		r.Get(hc.VersionPath, health.VersionHandler(b.Version, b.Commit, b.BuildTime))
	}

	if cfg.Telemetry.Metrics.Enabled && s.deps.Collector != nil {
		r.Handle(cfg.Telemetry.Metrics.Path, s.deps.Collector.Handler())
	}

	if cfg.Admin.APIKey != "" && s.deps.Feed != nil {
		r.With(auth.RequireAdmin(cfg.Admin.APIKey)).
			Get(cfg.Admin.FeedPath, handlers.NewFeedHandler(s.deps.Feed).ServeHTTP)
	} else {
		s.logger.Info("admin usage feed disabled", "reason", "no admin api key configured")
	}
}

// gatewayRoutes mounts the attendee, event and dialect routes.
func (s *Server) gatewayRoutes(r chi.Router) {
	deps := s.deps
	registry := dialect.NewRegistry(s.cfg.Upstream.APIVersions)
	ph := handlers.NewProxyHandler(registry, deps.Catalog, deps.Forwarder, s.cfg.Server.MaxRequestBodyBytes)
	ah := handlers.NewAssistantsHandler(ph, deps.Store)
	eh := handlers.NewEventHandler(deps.Store, deps.Store, deps.Catalog)
	authn := auth.NewMiddleware(deps.Auth)

	r.Get("/event/{eventId}", eh.Event)

	// Ollama clients probe the root before their first call.
	r.Head("/", handlers.OllamaPing)
	r.Get("/", handlers.OllamaPing)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePrincipal)
		r.Post("/attendee/event/{eventId}/register", eh.Register)
		r.Get("/attendee/event/{eventId}", eh.Attendee)
	})

	// Status routes sit beside the rate gate so a capped caller can
	// still read them.
	r.Group(func(r chi.Router) {
		r.Use(authn.RequireAPIKey)
		r.Post("/eventinfo", eh.EventInfo)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateGate)

			r.Post("/openai/deployments/{deployment}/*", ph.AzureOpenAI)
			r.Post("/indexes/{index}/docs/search", ph.Search)
			r.Post("/indexes('{index}')/docs/search.post.search", ph.SearchOData)
			for _, c := range handlers.AssistantCollections {
				for _, m := range handlers.AssistantMethods {
					r.Method(m, "/openai/"+c, ah)
					r.Method(m, "/openai/"+c+"/*", ah)
				}
			}
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireBearer)
		r.Get("/api/tags", ph.OllamaTags)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateGate)

			for _, op := range []string{"chat/completions", "completions", "embeddings", "images/generations"} {
				r.Post("/"+op, ph.OpenAI(op))
			}
			for _, op := range []string{"chat/completions", "embeddings"} {
				r.Post("/models/"+op, ph.Inference(op))
			}
			r.Post("/api/chat", ph.OllamaChat)
		})
	})
}
