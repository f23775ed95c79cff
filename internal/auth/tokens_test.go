package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/config"
)

func TestPasetoService_RoundTrip(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)
	id := uuid.New()

	token, err := svc.CreateToken(id, "alice@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.AccountID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Minute), claims.ExpiresAt, time.Second)
}

func TestPasetoService_Expired(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), "a@example.com", time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasetoService_WrongKey(t *testing.T) {
	svc, err := NewPasetoService(testKey)
	require.NoError(t, err)
	other, err := NewPasetoService([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), "a@example.com", time.Minute)
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewPasetoService_KeyLength(t *testing.T) {
	_, err := NewPasetoService([]byte("short"))
	assert.Error(t, err)
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc, err := NewJWTService(testKey)
	require.NoError(t, err)
	id := uuid.New()

	token, err := svc.CreateToken(id, "bob@example.com", time.Minute)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.AccountID)
	assert.Equal(t, "bob@example.com", claims.Email)
}

func TestJWTService_ExpiredAndTampered(t *testing.T) {
	svc, err := NewJWTService(testKey)
	require.NoError(t, err)

	token, err := svc.CreateToken(uuid.New(), "bob@example.com", time.Minute)
	require.NoError(t, err)

	other, err := NewJWTService([]byte("another-secret-that-is-32-bytes!!"))
	require.NoError(t, err)
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewTokenService(t *testing.T) {
	ts, err := NewTokenService(config.AuthConfig{TokenFormat: config.TokenFormatPaseto, PasetoKey: testKey})
	require.NoError(t, err)
	assert.IsType(t, &PasetoService{}, ts)

	ts, err = NewTokenService(config.AuthConfig{TokenFormat: config.TokenFormatJWT, JWTSecret: testKey})
	require.NoError(t, err)
	assert.IsType(t, &JWTService{}, ts)

	_, err = NewTokenService(config.AuthConfig{TokenFormat: "macaroon"})
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret-pass", testArgon2Params)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))

	assert.True(t, verifyPassword(hash, "s3cret-pass"))
	assert.False(t, verifyPassword(hash, "s3cret-pasS"))
	assert.False(t, verifyPassword("$bcrypt$nope", "s3cret-pass"))
	assert.False(t, verifyPassword("", "s3cret-pass"))

	again, err := hashPassword("s3cret-pass", testArgon2Params)
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ")
}
