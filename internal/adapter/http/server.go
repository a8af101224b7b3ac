package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	addr   string
	router *mux.Router
	server *http.Server
	logger logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Addr                 string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	RateLimit            RateLimitPolicy
}

// Services bundles what the handlers depend on
type Services struct {
	Products  ProductService
	Users     UserService
	Audit     AuditService
	Validator RequestValidator
	Tokens    ports.TokenService
	Limiter   ports.RateLimiter
	// ReadOnly reports audit read-only mode on /health; may be nil
	ReadOnly func() bool
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, services Services, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	router := NewRouter(config, services, log)

	return &Server{
		addr:   config.Addr,
		router: router,
		logger: log,
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// NewRouter wires middleware and routes
func NewRouter(config ServerConfig, services Services, log logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewNopLogger()
	}
	router := mux.NewRouter()

	limiter := NewRateLimitMiddleware(services.Limiter, config.RateLimit, log)
	identity := NewIdentityMiddleware(services.Tokens, log, "/health", "/api/v1/auth/login")

	router.Use(RecoveryMiddleware(log))
	router.Use(CorrelationIDMiddleware)
	router.Use(LoggingMiddleware(log))
	if config.CORSEnabled {
		router.Use(CORSMiddleware(config.CORSAllowedOrigins, config.CORSAllowCredentials))
	}
	router.Use(identity.Handler)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{"status": "ok"}
		if services.ReadOnly != nil {
			data["auditReadOnly"] = services.ReadOnly()
		}
		writeSuccess(w, http.StatusOK, "Service is healthy", data)
	}).Methods("GET")

	if services.Products != nil {
		NewProductHandler(services.Products).RegisterRoutes(router, limiter.Limit)
	}
	if services.Users != nil {
		NewUserHandler(services.Users, log).RegisterRoutes(router, limiter.Limit)
	}
	if services.Audit != nil {
		NewAuditHandler(services.Audit).RegisterRoutes(router)
	}
	if services.Validator != nil {
		NewValidateHandler(services.Validator, services.Products).RegisterRoutes(router)
	}

	// mux only runs middleware on matched routes; preflight needs a match
	if config.CORSEnabled {
		router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	}
	return router
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
