// Package auth issues and verifies API tokens and carries the authenticated
// user id through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-recipes/internal/httpx"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	userIDCtxKey = ctxKey("userID")
	issuer       = "go-recipes"
)

// ErrInvalidToken is returned by Parse for malformed, forged or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// UserVerifier validates that a token's user still exists and is allowed in.
// If nil, no extra verification is performed.
type UserVerifier func(ctx context.Context, uid uint) bool

// TokenAuth signs HS256 tokens whose subject is the user id.
type TokenAuth struct {
	secret   []byte
	ttl      time.Duration
	verifier UserVerifier
	now      func() time.Time
}

// NewTokenAuth creates a TokenAuth. A zero ttl issues tokens without expiry.
func NewTokenAuth(secret string, ttl time.Duration) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SetUserVerifier configures the verifier used by RequireAuth.
func (a *TokenAuth) SetUserVerifier(v UserVerifier) { a.verifier = v }

// Issue returns a signed token for uid.
func (a *TokenAuth) Issue(uid uint) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatUint(uint64(uid), 10),
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its user id.
func (a *TokenAuth) Parse(token string) (uint, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return 0, errors.Join(ErrInvalidToken, err)
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// TokenFromRequest extracts the token from "Authorization: Token <t>" or
// "Authorization: Bearer <t>". It returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		return strings.TrimSpace(token)
	}
	return ""
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDCtxKey).(uint)
	return id, ok
}

// Middleware attaches the user id to the request context when a valid token is sent.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := TokenFromRequest(r); tok != "" {
			if uid, err := a.Parse(tok); err == nil {
				r = r.WithContext(WithUserID(r.Context(), uid))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 401 unless Middleware found a valid token whose user
// still passes the verifier.
func (a *TokenAuth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok || (a.verifier != nil && !a.verifier(r.Context(), uid)) {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
