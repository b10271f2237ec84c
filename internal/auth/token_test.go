package auth

import (
	"testing"
	"time"

	"escrow-service/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = config.AuthConfig{JWTSecret: "test-secret", JWTIssuer: "identity-service"}

func TestMintAndParse(t *testing.T) {
	token, err := MintToken(testCfg, time.Now(), time.Hour, 42, RoleInspector)
	require.NoError(t, err)

	claims, err := ParseToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, RoleInspector, claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejects(t *testing.T) {
	expired, err := MintToken(testCfg, time.Now().Add(-2*time.Hour), time.Hour, 42, RoleUser)
	require.NoError(t, err)
	_, err = ParseToken(testCfg, expired)
	assert.Error(t, err)

	token, err := MintToken(testCfg, time.Now(), time.Hour, 42, RoleUser)
	require.NoError(t, err)

	_, err = ParseToken(config.AuthConfig{JWTSecret: "other", JWTIssuer: testCfg.JWTIssuer}, token)
	assert.Error(t, err)

	_, err = ParseToken(config.AuthConfig{JWTSecret: testCfg.JWTSecret, JWTIssuer: "someone-else"}, token)
	assert.Error(t, err)

	_, err = ParseToken(testCfg, "not-a-token")
	assert.Error(t, err)
}

func TestMintValidation(t *testing.T) {
	_, err := MintToken(testCfg, time.Now(), time.Hour, 0, RoleUser)
	assert.Error(t, err)
	_, err = MintToken(testCfg, time.Now(), time.Hour, 1, "ROOT")
	assert.Error(t, err)
	_, err = MintToken(config.AuthConfig{}, time.Now(), time.Hour, 1, RoleUser)
	assert.Error(t, err)
}
