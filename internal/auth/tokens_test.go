package auth

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewTokenService_KeyLength(t *testing.T) {
	_, err := NewTokenService(make([]byte, 16), time.Minute)
	assert.Error(t, err)

	svc, err := NewTokenService(newKey(t), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, svc.AccessTokenDuration())
}

func TestAccessToken_RoundTrip(t *testing.T) {
	svc, err := NewTokenService(newKey(t), 15*time.Minute)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(Subject{SessionID: "ses-1", UserID: "usr-1", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Contains(t, token, "v4.local.")

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ses-1", claims.SessionID)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, "usr-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.Expiration, 5*time.Second)
}

func TestVerifyAccessToken_Rejects(t *testing.T) {
	svc, err := NewTokenService(newKey(t), time.Minute)
	require.NoError(t, err)
	other, err := NewTokenService(newKey(t), time.Minute)
	require.NoError(t, err)
	expired, err := NewTokenService(newKey(t), -time.Minute)
	require.NoError(t, err)

	foreign, err := other.GenerateAccessToken(Subject{SessionID: "ses-1", UserID: "usr-1"})
	require.NoError(t, err)
	stale, err := expired.GenerateAccessToken(Subject{SessionID: "ses-1", UserID: "usr-1"})
	require.NoError(t, err)
	noSession, err := svc.GenerateAccessToken(Subject{UserID: "usr-1"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		svc   *TokenService
		token string
	}{
		{"garbage", svc, "not-a-token"},
		{"other key", svc, foreign},
		{"expired", expired, stale},
		{"missing session", svc, noSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.VerifyAccessToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	key, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	info, err := os.Stat(filepath.Join(dir, "auth.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestLoadOrGenerateKey_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.key"), []byte("abc"), 0o600))

	_, err := LoadOrGenerateKey(dir)
	assert.Error(t, err)
}
