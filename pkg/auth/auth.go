// Package auth authenticates user HTTP requests. Bearer tokens are
// JWTs signed with the configured shared secret; the token subject is
// the acting user id. The verified actor travels in the request context
// and handlers read it back with Actor.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/config"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/utils"
)

type ctxActorKey struct{}

// Actor returns the verified acting user id, or empty before auth.
func Actor(ctx context.Context) string {
	if s, ok := ctx.Value(ctxActorKey{}).(string); ok {
		return s
	}
	return ""
}

// WithActor injects an actor id; tests use it to skip token minting.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxActorKey{}, userID)
}

// Verifier validates bearer tokens and knows the administrative users.
type Verifier struct {
	Secret string
	Issuer string
	admins map[string]bool
}

// NewVerifier builds a Verifier from auth configuration.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	admins := make(map[string]bool, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = true
	}
	return &Verifier{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, admins: admins}
}

// IsAdmin reports whether userID is in the administrative user set.
func (v *Verifier) IsAdmin(userID string) bool { return v.admins[userID] }

// Subject parses and validates a raw token, returning its subject.
func (v *Verifier) Subject(raw string) (string, error) {
	claims := jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(v.Secret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return "", apierr.New(apierr.CodeInvalidToken, "token is invalid or expired")
	}
	if claims.Subject == "" {
		return "", apierr.New(apierr.CodeInvalidToken, "token has no subject")
	}
	return claims.Subject, nil
}

// Mint issues a token for userID; used by tests and tooling.
func (v *Verifier) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.Secret))
}

// RequireUser rejects requests without a valid bearer token and injects
// the actor into the context.
func (v *Verifier) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			utils.JSONErrorCode(w, apierr.CodeUnauthorized, "bearer token required")
			return
		}
		sub, err := v.Subject(strings.TrimSpace(h[7:]))
		if err != nil {
			logger.Warn("token_rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), sub)))
	})
}

// RequireAdmin layers the administrative user check over RequireUser.
func (v *Verifier) RequireAdmin(next http.Handler) http.Handler {
	return v.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.IsAdmin(Actor(r.Context())) {
			utils.JSONErrorCode(w, apierr.CodeForbidden, "administrative access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
