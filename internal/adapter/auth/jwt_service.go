package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrEmptySecret  = errors.New("jwt secret cannot be empty")
)

const tokenTypeAccess = "access"

// JWTService issues HS256 access tokens that carry the caller's identity
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a token service. A zero ttl means one hour.
func NewJWTService(secret string, ttl time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

var _ ports.TokenService = (*JWTService)(nil)

// GenerateToken signs an access token for actor and returns its expiry
func (s *JWTService) GenerateToken(actor domain.Actor) (string, time.Time, error) {
	if actor.UserID == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)
	claims := jwt.MapClaims{
		"user_id":   actor.UserID,
		"role":      string(actor.Role),
		"email":     actor.Email,
		"tenant_id": actor.TenantID,
		"exp":       expiresAt.Unix(),
		"iat":       issuedAt.Unix(),
		"type":      tokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses an access token back into the Actor it was issued for
func (s *JWTService) ValidateToken(tokenString string) (domain.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return domain.Actor{}, s.handleValidationError(err)
	}
	if !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, ErrInvalidToken
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != tokenTypeAccess {
		return domain.Actor{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" || !domain.UserRole(role).IsValid() {
		return domain.Actor{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	return domain.Actor{
		UserID:   userID,
		Role:     domain.UserRole(role),
		Email:    email,
		TenantID: tenantID,
	}, nil
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
