package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/config"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthService_ValidateToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	raw := signToken(t, "secret", jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := auth.ValidateToken(raw)
	require.NoError(t, err)

	userID, err := auth.GetUserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", userID)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	_, err := auth.ValidateToken(signToken(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}))
	assert.Error(t, err)

	_, err = auth.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}))
	assert.Error(t, err)

	_, err = auth.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestAuthService_MissingSubject(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret"})

	token, err := auth.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}))
	require.NoError(t, err)

	_, err = auth.GetUserIDFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
