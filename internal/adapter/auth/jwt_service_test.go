package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/domain"
)

var testActor = domain.Actor{
	UserID:   "user123",
	Role:     domain.UserRoleEditor,
	Email:    "editor@acme.test",
	TenantID: "acme",
}

func TestJWTService(t *testing.T) {
	service, err := NewJWTService("test-secret", time.Hour)
	require.NoError(t, err)

	t.Run("GenerateToken", func(t *testing.T) {
		token, expiresAt, err := service.GenerateToken(testActor)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)
	})

	t.Run("ValidateToken", func(t *testing.T) {
		token, _, err := service.GenerateToken(testActor)
		require.NoError(t, err)

		actor, err := service.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, testActor, actor)
	})

	t.Run("GenerateWithoutUser", func(t *testing.T) {
		_, _, err := service.GenerateToken(domain.Actor{Role: domain.UserRoleAdmin})
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateInvalidToken", func(t *testing.T) {
		_, err := service.ValidateToken("invalid-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateWrongSecret", func(t *testing.T) {
		other, err := NewJWTService("other-secret", time.Hour)
		require.NoError(t, err)
		token, _, err := other.GenerateToken(testActor)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateExpiredToken", func(t *testing.T) {
		token, _, err := service.GenerateToken(testActor)
		require.NoError(t, err)

		later, err := NewJWTService("test-secret", time.Hour)
		require.NoError(t, err)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err = later.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("RejectsOtherTokenType", func(t *testing.T) {
		claims := jwt.MapClaims{
			"user_id": "user123",
			"role":    "EDITOR",
			"exp":     time.Now().Add(time.Hour).Unix(),
			"type":    "refresh",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		claims := jwt.MapClaims{
			"user_id": "user123",
			"role":    "OWNER",
			"exp":     time.Now().Add(time.Hour).Unix(),
			"type":    "access",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("RejectsUnsignedToken", func(t *testing.T) {
		claims := jwt.MapClaims{"user_id": "user123", "role": "ADMIN", "type": "access"}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewJWTService(t *testing.T) {
	_, err := NewJWTService("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	service, err := NewJWTService("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, service.ttl)
}
