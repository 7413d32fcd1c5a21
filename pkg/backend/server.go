package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backend/handlers"
	"github.com/mattmillen888/bedrock-proxy/pkg/backend/middleware"
	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/bedrock"
	"github.com/mattmillen888/bedrock-proxy/pkg/metrics"
)

// routeUnmatched labels requests answered by the catch-all handler
const routeUnmatched = "unmatched"

// Server represents the proxy HTTP server that ties all components together
type Server struct {
	config     *backendtypes.ProxyConfig
	logger     *slog.Logger
	client     *bedrock.Client
	models     *bedrock.ModelMapper
	metrics    *metrics.Collector
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
}

// NewServer creates the server for cfg. A nil httpClient gets a client built
// from cfg.Upstream. cfg must already be validated and is not modified.
func NewServer(cfg *backendtypes.ProxyConfig, logger *slog.Logger, httpClient bedrock.Doer) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("backend: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = NewUpstreamClient(cfg.Upstream)
	}

	client, err := bedrock.NewClient(&cfg.Bedrock, httpClient, logger.With("component", "bedrock"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		client:  client,
		models:  bedrock.NewModelMapper(cfg.Bedrock.ModelMappings, cfg.Bedrock.InferenceProfile),
		metrics: metrics.NewCollector(cfg.Metrics, nil),
		mux:     http.NewServeMux(),
	}

	s.setupRoutes()
	s.handler = s.applyMiddleware(s.mux)
	return s, nil
}

// setupRoutes registers all HTTP routes with their corresponding handlers
func (s *Server) setupRoutes() {
	maxBody := s.config.Server.MaxBodyBytes
	profile := s.config.Bedrock.InferenceProfile

	healthHandler := handlers.NewHealthHandler(s.config.Server.Version, s.upstreamStatus())
	invokeHandler := handlers.NewInvokeHandler(s.client, profile, s.metrics, maxBody)
	openaiHandler := handlers.NewOpenAIHandler(s.client, s.models, s.metrics, maxBody)

	// Health and status endpoints
	s.handle("/health", healthHandler.Health)
	s.handle("/status", healthHandler.Status)
	s.handle("/version", healthHandler.Version)

	// Native invocation endpoints
	s.handle(handlers.RouteInvoke, invokeHandler.Invoke)
	s.handle(handlers.RouteInvokeStream, invokeHandler.InvokeStream)

	// OpenAI-compatible endpoints
	s.handle(handlers.RouteChatCompletions, openaiHandler.ChatCompletions)
	s.handle(handlers.RouteModels, openaiHandler.Models)

	if s.config.Metrics.Enabled {
		s.mux.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}

	s.mux.Handle("/", middleware.Metrics(routeUnmatched, s.metrics)(http.HandlerFunc(handlers.NotFound)))
}

func (s *Server) handle(route string, h http.HandlerFunc) {
	s.mux.Handle(route, middleware.Metrics(route, s.metrics)(h))
}

func (s *Server) upstreamStatus() backendtypes.UpstreamStatus {
	cfg := s.config.Bedrock
	return backendtypes.UpstreamStatus{
		Region:           cfg.Region,
		Endpoint:         cfg.GetEndpoint(),
		InferenceProfile: cfg.InferenceProfile,
		Credentials:      cfg.HasCredentials(),
		SessionToken:     cfg.SessionToken != "",
		Aliases:          len(s.models.Aliases()),
	}
}

// applyMiddleware builds the middleware chain and applies it to the handler
// Middleware is applied in reverse order (last applied runs first)
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	// Execution order: Recovery -> Logging -> RequestID -> CORS -> Auth -> Handler

	if s.config.Auth.Enabled {
		h = middleware.Auth(middleware.AuthConfig{
			Enabled:     true,
			APIPassword: s.config.Auth.APIPassword,
			APIKeyEnv:   s.config.Auth.APIKeyEnv,
			PublicPaths: s.config.Auth.PublicPaths,
		})(h)
	}

	if s.config.CORS.Enabled {
		h = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: s.config.CORS.AllowedOrigins,
			AllowedMethods: s.config.CORS.AllowedMethods,
			AllowedHeaders: s.config.CORS.AllowedHeaders,
		})(h)
	}

	h = middleware.RequestID(s.logger)(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.Recovery(h)

	return h
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's metrics collector
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *backendtypes.ProxyConfig {
	return s.config
}

func (s *Server) newHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
}

// Serve accepts connections on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = s.newHTTPServer(l.Addr().String())
	s.logStart(l.Addr())
	return s.httpServer.Serve(l)
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start() error {
	l, err := s.listen()
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server. Open streams are given until
// ctx is done to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// ListenAndServeWithGracefulShutdown listens on the configured address and
// serves until ctx is done
func (s *Server) ListenAndServeWithGracefulShutdown(ctx context.Context) error {
	l, err := s.listen()
	if err != nil {
		return err
	}
	return s.ServeWithGracefulShutdown(ctx, l)
}

// ServeWithGracefulShutdown serves on l until ctx is done, then shuts down
// within the configured shutdown timeout
func (s *Server) ServeWithGracefulShutdown(ctx context.Context, l net.Listener) error {
	s.httpServer = s.newHTTPServer(l.Addr().String())
	s.logStart(l.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		timeout := s.config.Server.ShutdownTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) listen() (net.Listener, error) {
	addr := s.config.Server.Addr()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return l, nil
}

func (s *Server) logStart(addr net.Addr) {
	s.logger.Info("starting server",
		"addr", addr.String(),
		"version", s.config.Server.Version,
		"region", s.config.Bedrock.Region,
		"inference_profile", s.config.Bedrock.InferenceProfile,
		"metrics", s.config.Metrics.Enabled,
	)
}
