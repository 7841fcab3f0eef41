package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arbiter-hq/arbiter/internal/apperrors"
)

// Authenticator resolves an incoming request to the owning user's ID.
// This is the minimal contract spec.md §4.13 calls for — the actual
// issuance/verification trust chain (signup, login, token rotation) is
// explicitly out of scope; arbiter only ever needs to answer "who is
// this request for".
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// jwtClaims is the HS256 claim shape this local/dev Authenticator expects
// — a bare subject claim, mirroring intelligencedev-manifold's
// JWTCustomClaims but trimmed to the one field arbiter actually reads.
type jwtClaims struct {
	jwt.RegisteredClaims
}

// JWTAuthenticator parses a bearer token with a shared HS256 secret and
// returns its subject claim as the user ID. It does not issue tokens —
// token issuance belongs to whatever identity provider fronts arbiter in
// production; this only verifies.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator builds a JWTAuthenticator over the given shared
// secret. A empty secret is a ConfigError at construction, not at first
// request, so misconfiguration fails at startup.
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, &apperrors.ConfigError{Reason: "auth.jwt_secret is required"}
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", &apperrors.ValidationError{Field: "authorization", Reason: "missing bearer token"}
	}
	raw := strings.TrimPrefix(header, prefix)

	var claims jwtClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return "", &apperrors.ValidationError{Field: "authorization", Reason: "invalid bearer token: " + err.Error()}
	}
	if claims.Subject == "" {
		return "", &apperrors.ValidationError{Field: "authorization", Reason: "token has no subject claim"}
	}
	return claims.Subject, nil
}

// AllowAllAuthenticator is a test double that trusts the X-User-ID header
// verbatim, or falls back to a fixed default user. Used only by tests;
// neither binary wires it.
type AllowAllAuthenticator struct {
	DefaultUser string
}

func (a AllowAllAuthenticator) Authenticate(r *http.Request) (string, error) {
	if u := r.Header.Get("X-User-ID"); u != "" {
		return u, nil
	}
	if a.DefaultUser != "" {
		return a.DefaultUser, nil
	}
	return "anonymous", nil
}
