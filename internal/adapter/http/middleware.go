package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	UserIDHeader        = "X-User-ID"
	UserRoleHeader      = "X-User-Role"
	UserEmailHeader     = "X-User-Email"
	TenantIDHeader      = "X-Tenant-ID"

	// DefaultTenant is used when a request names no tenant
	DefaultTenant = "default"
)

type actorKey struct{}

// ActorFromContext returns the caller identity attached by the identity middleware
func ActorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}

// ContextWithActor attaches actor to ctx
func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// CorrelationIDMiddleware ensures every request and response carries a correlation ID
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithCorrelationID(r.Context(), cid)))
	})
}

// IdentityMiddleware resolves the caller. With a token service configured every request
// outside the public paths needs a bearer token; without one the identity headers are trusted.
// Requests without identity pass through with an empty Actor; use cases reject them.
type IdentityMiddleware struct {
	tokens ports.TokenService
	public map[string]bool
	logger logger.Logger
}

// NewIdentityMiddleware creates the middleware. tokens may be nil to accept headers only.
// publicPaths are served without a token, e.g. login and health.
func NewIdentityMiddleware(tokens ports.TokenService, log logger.Logger, publicPaths ...string) *IdentityMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}
	return &IdentityMiddleware{tokens: tokens, public: public, logger: log}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if m.tokens == nil {
			next.ServeHTTP(w, r.WithContext(ContextWithActor(ctx, headerActor(r))))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.public[r.URL.Path] {
				anonymous := domain.Actor{TenantID: tenantFromHeader(r)}
				next.ServeHTTP(w, r.WithContext(ContextWithActor(ctx, anonymous)))
				return
			}
			logger.LogAuthEvent(ctx, m.logger, "token_missing", "", clientIP(r), false, map[string]interface{}{
				"path": r.URL.Path,
			})
			writeFailure(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			writeFailure(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		actor, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			logger.LogAuthEvent(ctx, m.logger, "token_rejected", "", clientIP(r), false, map[string]interface{}{
				"error": err.Error(),
			})
			writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if actor.TenantID == "" {
			actor.TenantID = DefaultTenant
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(ctx, actor)))
	})
}

func headerActor(r *http.Request) domain.Actor {
	return domain.Actor{
		UserID:   strings.TrimSpace(r.Header.Get(UserIDHeader)),
		Role:     domain.UserRole(strings.ToUpper(strings.TrimSpace(r.Header.Get(UserRoleHeader)))),
		Email:    strings.TrimSpace(r.Header.Get(UserEmailHeader)),
		TenantID: tenantFromHeader(r),
	}
}

func tenantFromHeader(r *http.Request) string {
	if tenant := strings.TrimSpace(r.Header.Get(TenantIDHeader)); tenant != "" {
		return tenant
	}
	return DefaultTenant
}

// RateLimitPolicy bounds requests per caller on the guarded routes
type RateLimitPolicy struct {
	Requests      int
	Window        time.Duration
	BlockDuration time.Duration
}

// RateLimitMiddleware throttles write-heavy endpoints per user, or per IP when anonymous
type RateLimitMiddleware struct {
	limiter ports.RateLimiter
	policy  RateLimitPolicy
	logger  logger.Logger
}

func NewRateLimitMiddleware(limiter ports.RateLimiter, policy RateLimitPolicy, log logger.Logger) *RateLimitMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	if policy.BlockDuration <= 0 {
		policy.BlockDuration = policy.Window
	}
	return &RateLimitMiddleware{limiter: limiter, policy: policy, logger: log}
}

func (m *RateLimitMiddleware) key(r *http.Request) string {
	scope := "general"
	switch {
	case strings.HasSuffix(r.URL.Path, "/login"):
		scope = "login"
	case strings.HasSuffix(r.URL.Path, "/bulk"):
		scope = "bulk"
	case strings.HasSuffix(r.URL.Path, "/transitions"):
		scope = "transition"
	}
	if actor := ActorFromContext(r.Context()); actor.UserID != "" {
		return fmt.Sprintf("%s:user:%s:%s", scope, actor.TenantID, actor.UserID)
	}
	return fmt.Sprintf("%s:ip:%s", scope, clientIP(r))
}

func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.policy.Requests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := m.key(r)

		blocked, err := m.limiter.IsBlocked(ctx, key)
		if err != nil {
			m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		}
		if blocked {
			logger.LogSecurityEvent(ctx, m.logger, "rate_limit_blocked", "MEDIUM", map[string]interface{}{
				"key":  key,
				"path": r.URL.Path,
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(m.policy.BlockDuration.Seconds())))
			writeError(w, domain.ErrRateLimited)
			return
		}

		allowed, err := m.limiter.CheckLimit(ctx, key, m.policy.Requests, m.policy.Window)
		if err != nil {
			m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
			allowed = true
		}
		if !allowed {
			if err := m.limiter.Block(ctx, key, m.policy.BlockDuration, "Rate limit exceeded"); err != nil {
				m.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
			}
			logger.LogSecurityEvent(ctx, m.logger, "rate_limit_exceeded", "HIGH", map[string]interface{}{
				"key":  key,
				"path": r.URL.Path,
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(m.policy.BlockDuration.Seconds())))
			writeError(w, domain.ErrRateLimited)
			return
		}

		if err := m.limiter.Increment(ctx, key, m.policy.Window); err != nil {
			m.logger.Error(ctx, "Failed to increment rate limit", err, map[string]interface{}{"key": key})
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP from proxy headers or the remote address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every request with its status and duration
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.LogPerformance(r.Context(), log, "http_request", time.Since(start), map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": rec.status,
				"ip":     clientIP(r),
			})
		})
	}
}

// RecoveryMiddleware turns panics into 500 responses
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(r.Context(), "Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
					})
					writeFailure(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware adds CORS headers for allowed origins and answers preflight requests.
// An origin list containing "*" allows any origin.
func CORSMiddleware(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	_, allowAll := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if origin != "" {
				if _, ok := allowed[origin]; ok || allowAll {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					if allowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					w.Header().Set("Access-Control-Expose-Headers", CorrelationIDHeader)
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
						"Content-Type", "Authorization", CorrelationIDHeader,
						UserIDHeader, UserRoleHeader, UserEmailHeader, TenantIDHeader,
					}, ", "))
				}
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
