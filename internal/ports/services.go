package ports

import (
	"context"
	"time"

	"github.com/fixora/pim/internal/domain"
)

// RateLimiter defines the interface for request rate limiting
type RateLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) error
	Block(ctx context.Context, key string, duration time.Duration, reason string) error
	IsBlocked(ctx context.Context, key string) (bool, error)
	GetAttempts(ctx context.Context, key string) (int, error)
}

// TokenService issues and validates bearer tokens carrying an Actor
type TokenService interface {
	GenerateToken(actor domain.Actor) (string, time.Time, error)
	ValidateToken(token string) (domain.Actor, error)
}

// PasswordService hashes and verifies user passwords
type PasswordService interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hashedPassword, password string) error
	ValidatePasswordStrength(password string) error
}
