// Package auth validates bearer tokens. Tokens are JWTs signed either with
// a shared HS256 secret or an ES256 key pair, and must carry an "id" claim
// naming the caller.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rkm/stac-catalog/internal/config"
)

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	ID      string
	Subject string
}

type claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Verifier checks token signatures and claims.
type Verifier struct {
	key    any
	parser *jwt.Parser
}

func newVerifier(key any, method, issuer string) *Verifier {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{method})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{key: key, parser: jwt.NewParser(opts...)}
}

// NewHMAC returns a verifier for HS256 tokens signed with secret.
func NewHMAC(secret []byte, issuer string) *Verifier {
	return newVerifier(secret, jwt.SigningMethodHS256.Alg(), issuer)
}

// NewECDSA returns a verifier for ES256 tokens. publicKeyPEM holds a PKIX
// encoded P-256 public key.
func NewECDSA(publicKeyPEM []byte, issuer string) (*Verifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return newVerifier(key, jwt.SigningMethodES256.Alg(), issuer), nil
}

// FromConfig builds the verifier the configuration asks for. It returns nil
// when authentication is inactive. A public key file takes precedence over
// a secret.
func FromConfig(cfg config.AuthConfig) (*Verifier, error) {
	if !cfg.Active() {
		return nil, nil
	}
	if cfg.PublicKeyFile != "" {
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key file: %w", err)
		}
		return NewECDSA(data, cfg.Issuer)
	}
	return NewHMAC([]byte(cfg.Secret), cfg.Issuer), nil
}

// Verify validates a raw token and returns the identity it carries.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	var c claims
	_, err := v.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: id claim is required", ErrInvalidToken)
	}
	return &Identity{ID: c.ID, Subject: c.Subject}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: authorization header must use Bearer scheme", ErrInvalidToken)
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type identityKey struct{}

// WithIdentity stores the caller in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
