package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test keys generated once for all tests
var (
	testPrivateKey     *rsa.PrivateKey
	testPublicKeyPath  string
	otherPrivateKey    *rsa.PrivateKey
	otherPublicKeyPath string
)

func TestMain(m *testing.M) {
	var err error
	testPrivateKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("Failed to generate test private key: %v", err))
	}

	otherPrivateKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("Failed to generate other private key: %v", err))
	}

	testPublicKeyPath = createTempPublicKey(&testPrivateKey.PublicKey)
	otherPublicKeyPath = createTempPublicKey(&otherPrivateKey.PublicKey)

	code := m.Run()

	os.Remove(testPublicKeyPath)
	os.Remove(otherPublicKeyPath)

	os.Exit(code)
}

func createTempPublicKey(pubKey *rsa.PublicKey) string {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal public key: %v", err))
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	tmpFile, err := os.CreateTemp("", "test_pub_key_*.pem")
	if err != nil {
		panic(fmt.Sprintf("Failed to create temp file: %v", err))
	}
	defer tmpFile.Close()

	if _, err := tmpFile.Write(pubKeyPEM); err != nil {
		panic(fmt.Sprintf("Failed to write to temp file: %v", err))
	}

	return tmpFile.Name()
}

func generateTestToken(claims jwt.Claims, key *rsa.PrivateKey) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		panic(fmt.Sprintf("Failed to generate test token: %v", err))
	}
	return tokenString
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "user123",
		Audience:  jwt.ClaimStrings{"test-aud"},
		Issuer:    "test-iss",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
}

func TestNewRS256Verifier(t *testing.T) {
	tests := []struct {
		name        string
		pubKeyPath  string
		wantErr     bool
		errContains string
	}{
		{
			name:       "successful creation",
			pubKeyPath: testPublicKeyPath,
		},
		{
			name:        "file not found",
			pubKeyPath:  "/nonexistent/file.pem",
			wantErr:     true,
			errContains: "failed to read public key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier, err := NewRS256Verifier(tt.pubKeyPath, "test-aud", "test-iss")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, verifier)
		})
	}
}

func TestVerifyBearer_Success(t *testing.T) {
	verifier, err := NewRS256Verifier(testPublicKeyPath, "test-aud", "test-iss")
	require.NoError(t, err)

	token := generateTestToken(validClaims(), testPrivateKey)

	claims, err := verifier.VerifyBearer("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.Subject)
}

func TestVerifyBearer_InvalidTokens(t *testing.T) {
	verifier, err := NewRS256Verifier(testPublicKeyPath, "test-aud", "test-iss")
	require.NoError(t, err)

	tests := []struct {
		name       string
		setupToken func() string
	}{
		{
			name: "wrong signature",
			setupToken: func() string {
				return generateTestToken(validClaims(), otherPrivateKey)
			},
		},
		{
			name: "expired",
			setupToken: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return generateTestToken(c, testPrivateKey)
			},
		},
		{
			name: "wrong audience",
			setupToken: func() string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"someone-else"}
				return generateTestToken(c, testPrivateKey)
			},
		},
		{
			name: "wrong issuer",
			setupToken: func() string {
				c := validClaims()
				c.Issuer = "evil-iss"
				return generateTestToken(c, testPrivateKey)
			},
		},
		{
			name: "missing exp",
			setupToken: func() string {
				c := validClaims()
				c.ExpiresAt = nil
				return generateTestToken(c, testPrivateKey)
			},
		},
		{
			name: "hs256 is rejected",
			setupToken: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
				s, serr := token.SignedString([]byte("shared-secret"))
				require.NoError(t, serr)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verr := verifier.VerifyBearer("Bearer " + tt.setupToken())
			assert.Error(t, verr)
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{header: "bearer abc.def.ghi", want: "abc.def.ghi"},
		{header: "", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "Basic dXNlcjpwYXNz", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := extractBearer(tt.header)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrNoBearerToken, "header=%q", tt.header)
			continue
		}
		require.NoError(t, err, "header=%q", tt.header)
		assert.Equal(t, tt.want, got)
	}
}
