package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fixora/pim/internal/adapter/auth"
	"github.com/fixora/pim/internal/adapter/events"
	httpadapter "github.com/fixora/pim/internal/adapter/http"
	"github.com/fixora/pim/internal/adapter/persistence"
	"github.com/fixora/pim/internal/adapter/ratelimit"
	"github.com/fixora/pim/internal/config"
	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
	"github.com/fixora/pim/internal/usecase"
)

// App holds the wired components of one process
type App struct {
	Config *config.Config
	Logger logger.Logger

	DB    *sql.DB
	Redis *redis.Client

	Products  ports.ProductRepository
	Users     ports.UserRepository
	AuditRepo ports.AuditRepository
	Publisher ports.EventPublisher
	Limiter   ports.RateLimiter
	Tokens    ports.TokenService

	Permissions *domain.PermissionResolver
	States      *usecase.WorkflowStateManager
	Validator   *usecase.ValidationMiddleware
	Audit       *usecase.ImmutableAuditTrailService
	Verifier    *usecase.IntegrityVerifier

	ProductUC *usecase.ProductUseCase
	UserUC    *usecase.UserUseCase
	AuditUC   *usecase.AuditUseCase
}

// Build wires repositories, services and use cases from cfg. PostgreSQL is used when a
// database URL is configured, in-memory stores otherwise. Redis is only dialed when
// events or rate limiting need it.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	a := &App{Config: cfg, Logger: log}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initRedis(ctx)
	a.initPublisher()
	a.initLimiter()

	if err := a.initServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	if !a.Config.UsesDatabase() {
		a.Products = persistence.NewMemoryProductRepository()
		a.Users = persistence.NewMemoryUserRepository()
		a.AuditRepo = persistence.NewMemoryAuditRepository()
		a.Logger.Warn(ctx, "DATABASE_URL not set, using in-memory stores", nil)
		return nil
	}

	db, err := sql.Open("postgres", a.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(a.Config.Database.MaxConnections)
	db.SetConnMaxIdleTime(a.Config.Database.MaxIdleTime)
	a.DB = db

	pingCtx, cancel := context.WithTimeout(ctx, a.Config.Database.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	a.Logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_connections": a.Config.Database.MaxConnections,
	})

	a.Products = persistence.NewPostgresProductRepository(db)
	a.Users = persistence.NewPostgresUserRepository(db)
	a.AuditRepo = persistence.NewPostgresAuditRepository(db)
	return nil
}

func (a *App) initRedis(ctx context.Context) {
	if !a.Config.Events.Enabled && !a.Config.RateLimit.Enabled {
		return
	}
	client, err := events.Connect(ctx, a.Config.Redis.URL)
	if err != nil {
		a.Logger.Warn(ctx, "Redis unavailable, falling back to in-process components", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	a.Redis = client
	a.Logger.Info(ctx, "Redis connection established", nil)
}

func (a *App) initPublisher() {
	switch {
	case a.Config.Events.Enabled && a.Redis != nil:
		a.Publisher = events.NewRedisPublisher(a.Redis, a.Config.Events.Channel, a.Logger)
	default:
		a.Publisher = events.NewMemoryPublisher(1000)
	}
}

func (a *App) initLimiter() {
	switch {
	case !a.Config.RateLimit.Enabled:
		a.Limiter = ratelimit.NoopLimiter{}
	case a.Redis != nil:
		a.Limiter = ratelimit.NewRedisLimiter(a.Redis, a.Logger)
	default:
		a.Limiter = ratelimit.NewMemoryLimiter()
	}
}

func (a *App) initServices() error {
	cfg := a.Config

	workflow, err := config.LoadWorkflowConfig(cfg.Workflow.ConfigFile, cfg.Quality)
	if err != nil {
		return fmt.Errorf("failed to load workflow configuration: %w", err)
	}
	digester, err := integrity.New(cfg.Audit.DigestAlgorithm)
	if err != nil {
		return fmt.Errorf("failed to create digester: %w", err)
	}
	if !digester.Cryptographic() {
		a.Logger.Warn(context.Background(), "Audit digest is not cryptographic", map[string]interface{}{
			"algorithm": digester.Name(),
		})
	}

	if cfg.Security.JWTSecret != "" {
		tokens, err := auth.NewJWTService(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		a.Tokens = tokens
	}

	a.Permissions = domain.NewPermissionResolver(workflow.RolePermissions, workflow.ActionPermissions)
	a.States = usecase.NewWorkflowStateManager(workflow.Rules, a.Permissions)
	a.Validator = usecase.NewValidationMiddleware(a.Permissions, a.States, usecase.NewQualityGate(*workflow.Quality), a.Logger)

	base := usecase.NewAuditTrailService(a.AuditRepo, digester, cfg.Audit.Retention, a.Logger)
	a.Audit = usecase.NewImmutableAuditTrailService(base, usecase.ImmutableOptions{
		ClockSkew:        cfg.Audit.ClockSkew,
		MinEntryInterval: cfg.Audit.MinEntryInterval,
		ReadOnly:         cfg.Audit.ReadOnly,
	})
	a.Verifier = usecase.NewIntegrityVerifier(a.Audit, a.AuditRepo, a.Publisher, a.Logger, usecase.VerifierOptions{
		Interval:         cfg.Audit.VerifyInterval,
		ArchiveAfterDays: cfg.Audit.ArchiveAfterDays,
		Purge:            true,
	})

	passwords := auth.NewBcryptPasswordService(0)

	a.ProductUC = usecase.NewProductUseCase(a.Products, a.Users, a.States, a.Validator, a.Audit, a.Publisher, a.Logger)
	a.UserUC = usecase.NewUserUseCase(a.Users, passwords, a.Tokens, a.Validator, a.Audit, a.Publisher, a.Logger)
	a.AuditUC = usecase.NewAuditUseCase(a.Audit, a.Validator, a.Verifier, cfg.Audit.ArchiveAfterDays, a.Logger)
	return nil
}

// Server builds the HTTP server over the wired use cases
func (a *App) Server() *httpadapter.Server {
	cfg := a.Config
	var policy httpadapter.RateLimitPolicy
	if cfg.RateLimit.Enabled {
		policy = httpadapter.RateLimitPolicy{
			Requests:      cfg.RateLimit.Requests,
			Window:        cfg.RateLimit.Window,
			BlockDuration: cfg.RateLimit.BlockDuration,
		}
	}
	return httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:                 cfg.Address(),
		ReadTimeout:          cfg.Server.ReadTimeout,
		WriteTimeout:         cfg.Server.WriteTimeout,
		IdleTimeout:          cfg.Server.IdleTimeout,
		CORSEnabled:          cfg.Security.CORSEnabled && len(cfg.Security.CORSAllowedOrigins) > 0,
		CORSAllowedOrigins:   cfg.Security.CORSAllowedOrigins,
		CORSAllowCredentials: cfg.Security.CORSAllowCredentials,
		RateLimit:            policy,
	}, httpadapter.Services{
		Products:  a.ProductUC,
		Users:     a.UserUC,
		Audit:     a.AuditUC,
		Validator: a.Validator,
		Tokens:    a.Tokens,
		Limiter:   a.Limiter,
		ReadOnly:  a.AuditUC.ReadOnly,
	}, a.Logger)
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
