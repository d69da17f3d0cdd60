package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-notify-hub/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeys(t *testing.T) (privPath, pubPath string, key *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))
	return privPath, pubPath, key
}

func TestSignAndVerify(t *testing.T) {
	priv, pub, _ := writeKeys(t)
	p, err := NewProvider(&config.Config{JWTPrivateKeyPath: priv, JWTPublicKeyPath: pub, JWTExpiry: time.Hour})
	require.NoError(t, err)

	signed, err := p.Sign("u1", "admin")
	require.NoError(t, err)

	claims, err := p.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, Issuer, claims.Issuer)

	userID, err := p.UserIDFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestVerifyOnlyProvider(t *testing.T) {
	_, pub, key := writeKeys(t)
	p, err := NewProvider(&config.Config{JWTPublicKeyPath: pub})
	require.NoError(t, err)

	_, err = p.Sign("u1", "")
	assert.ErrorIs(t, err, ErrSigningDisabled)

	// Tokens from an external issuer may carry only the subject.
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "u9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	userID, err := p.UserIDFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u9", userID)
}

func TestVerify_Rejects(t *testing.T) {
	_, pub, key := writeKeys(t)
	p, err := NewProvider(&config.Config{JWTPublicKeyPath: pub})
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString(key)
	require.NoError(t, err)
	_, err = p.Verify(signed)
	assert.Error(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{UserID: "u1"})
	signed, err = noExpiry.SignedString(key)
	require.NoError(t, err)
	_, err = p.Verify(signed)
	assert.Error(t, err)

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"})
	signed, err = hmac.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = p.Verify(signed)
	assert.Error(t, err)
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPublicKeyPath: filepath.Join(t.TempDir(), "absent.pem")})
	assert.Error(t, err)
}
