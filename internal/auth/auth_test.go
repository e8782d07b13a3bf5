package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rkm/stac-catalog/internal/config"
)

const secret = "test-secret"

func signHS(t *testing.T, c jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifyHMAC(t *testing.T) {
	v := NewHMAC([]byte(secret), "")
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"valid", signHS(t, jwt.MapClaims{"id": "user-1", "sub": "alice", "exp": future}, secret), "user-1", nil},
		{"no expiry", signHS(t, jwt.MapClaims{"id": "user-2"}, secret), "user-2", nil},
		{"missing id", signHS(t, jwt.MapClaims{"sub": "alice"}, secret), "", ErrInvalidToken},
		{"wrong secret", signHS(t, jwt.MapClaims{"id": "user-1"}, "other"), "", ErrInvalidToken},
		{"expired", signHS(t, jwt.MapClaims{"id": "user-1", "exp": past}, secret), "", ErrInvalidToken},
		{"garbage", "not.a.token", "", ErrInvalidToken},
		{"empty", "", "", ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if id.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", id.ID, tt.wantID)
			}
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	v := NewHMAC([]byte(secret), "")
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"id": "x"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(s); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS512 token accepted: %v", err)
	}
}

func TestVerifyIssuer(t *testing.T) {
	v := NewHMAC([]byte(secret), "https://issuer.example.com")
	if _, err := v.Verify(signHS(t, jwt.MapClaims{"id": "a", "iss": "https://issuer.example.com"}, secret)); err != nil {
		t.Errorf("matching issuer rejected: %v", err)
	}
	if _, err := v.Verify(signHS(t, jwt.MapClaims{"id": "a", "iss": "https://evil.example.com"}, secret)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign issuer accepted: %v", err)
	}
}

func writeECKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return key, path
}

func TestFromConfigECDSA(t *testing.T) {
	key, path := writeECKey(t)
	v, err := FromConfig(config.AuthConfig{Enabled: true, PublicKeyFile: path})
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{"id": "svc"}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.ID != "svc" {
		t.Errorf("ID = %q", id.ID)
	}

	if _, err := v.Verify(signHS(t, jwt.MapClaims{"id": "svc"}, secret)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS256 token accepted by ES256 verifier: %v", err)
	}
}

func TestFromConfigInactive(t *testing.T) {
	for _, cfg := range []config.AuthConfig{
		{Enabled: false, Secret: secret},
		{Enabled: true},
	} {
		v, err := FromConfig(cfg)
		if err != nil || v != nil {
			t.Errorf("FromConfig(%+v) = %v, %v; want nil, nil", cfg, v, err)
		}
	}
	if _, err := FromConfig(config.AuthConfig{Enabled: true, PublicKeyFile: "/does/not/exist.pem"}); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
		{"Basic dXNlcg==", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("empty context has an identity")
	}
	ctx := WithIdentity(context.Background(), &Identity{ID: "u"})
	if got := FromContext(ctx); got == nil || got.ID != "u" {
		t.Errorf("FromContext() = %v", got)
	}
}
