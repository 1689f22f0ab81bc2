// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/address-registry/internal/logging"
	"github.com/address-registry/internal/metrics"
	"github.com/address-registry/internal/models"
	"github.com/address-registry/internal/ratelimit"
	"github.com/address-registry/internal/service"
	"github.com/gorilla/mux"
)

// AddressServiceInterface defines the interface for address service operations
type AddressServiceInterface interface {
	Submit(ctx context.Context, input *service.SubmitInput) (int64, error)
	List(ctx context.Context) ([]*models.Address, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Backend() string
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	addressService AddressServiceInterface
	health         HealthChecker
	limiter        ratelimit.Limiter
	metrics        *metrics.Metrics
	logger         *logging.Logger
	config         *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	PublicDir       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Option configures optional server collaborators
type Option func(*Server)

// WithRateLimiter limits every /api route. A nil limiter disables limiting.
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithMetrics sets the collectors served at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	addressService AddressServiceInterface,
	health HealthChecker,
	opts ...Option,
) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		addressService: addressService,
		health:         health,
		config:         config,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = logging.GetGlobalLogger()
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(MetricsMiddleware(s.metrics))
	s.router.Use(CompressionMiddleware)

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(RateLimitMiddleware(s.limiter))
	}

	// OPTIONS is listed so preflight requests reach CORSMiddleware.
	api.HandleFunc("/submit-address", s.handleSubmitAddress).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/addresses", s.handleListAddresses).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/count", s.handleCountAddresses).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/addresses/{id}", s.handleDeleteAddress).Methods(http.MethodDelete, http.MethodOptions)

	// Pages and static assets
	s.router.HandleFunc("/", s.servePage("index.html")).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/collect", s.servePage("collect.html")).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/admin", s.servePage("admin.html")).Methods(http.MethodGet, http.MethodHead)
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.PublicDir))).Methods(http.MethodGet, http.MethodHead)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Service:  "address-registry",
		Database: s.health.Backend(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = "database unreachable"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.WithField("addr", ln.Addr().String()).Info("Starting API server")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
