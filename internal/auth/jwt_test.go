package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/config"
)

func jwtConfig() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Minute, Issuer: "paycore"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := jwtConfig()
	tok, err := GenerateAccessToken(cfg, 7, "sara@example.com", "ADMIN")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := jwtConfig()
	tok, err := GenerateAccessToken(cfg, 7, "", "CUSTOMER")
	require.NoError(t, err)

	other := jwtConfig()
	other.AccessSecret = "another"
	_, err = ParseAccessToken(other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other = jwtConfig()
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwtConfig()
	expired.AccessExpiry = -time.Minute
	old, err := GenerateAccessToken(expired, 7, "", "CUSTOMER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseAccessToken(cfg, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRequiresKnownRole(t *testing.T) {
	cfg := jwtConfig()
	tok, err := GenerateAccessToken(cfg, 7, "", "COMPANION")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err = GenerateAccessToken(cfg, 0, "", "ADMIN")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err = GenerateAccessToken(cfg, 3, "", "ADMIN")
	require.NoError(t, err)
	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "3", claims.Subject)
}
