package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenRoundTrip(t *testing.T) {
	s := NewAuthService(nil, "test-secret", 1)
	userID := uuid.New()

	signed := signTestToken(t, "test-secret", jwt.MapClaims{
		"user_id": userID.String(),
		"email":   "researcher@example.edu",
		"tier":    "basic",
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	})

	claims, err := s.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "basic", claims["tier"])

	parsed, err := s.UserIDFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	s := NewAuthService(nil, "test-secret", 1)

	signed := signTestToken(t, "other-secret", jwt.MapClaims{
		"user_id": uuid.New().String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	_, err := s.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewAuthService(nil, "test-secret", 1)

	signed := signTestToken(t, "test-secret", jwt.MapClaims{
		"user_id": uuid.New().String(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	_, err := s.ValidateToken(signed)
	assert.Error(t, err)
}

func TestUserIDFromClaimsRejectsMalformed(t *testing.T) {
	s := NewAuthService(nil, "test-secret", 1)

	_, err := s.UserIDFromClaims(jwt.MapClaims{"user_id": 42})
	assert.Error(t, err)

	_, err = s.UserIDFromClaims(jwt.MapClaims{"user_id": "not-a-uuid"})
	assert.Error(t, err)
}
