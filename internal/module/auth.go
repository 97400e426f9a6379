package module

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	authorization = "Authorization"
	bearerPrefix  = "bearer "
)

var (
	// ErrNotAuthenticated is returned when an operation needs a user and the
	// request carries none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidToken is returned for a token the verifier rejects.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier resolves a session token to a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type userKey struct{}

// WithUser stores the authenticated user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the authenticated user id or ErrNotAuthenticated.
func UserID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userKey{}).(string)
	if !ok || id == "" {
		return "", ErrNotAuthenticated
	}
	return id, nil
}

// Authenticate verifies token, when there is one, and attaches its user to
// ctx. An empty token leaves ctx anonymous.
func Authenticate(ctx context.Context, verifier TokenVerifier, token string) (context.Context, error) {
	if token == "" {
		return ctx, nil
	}

	userID, err := verifier.VerifyToken(ctx, token)
	if err != nil {
		return ctx, errors.Join(ErrInvalidToken, err)
	}
	return WithUser(ctx, userID), nil
}

// AuthTokenMiddleware authenticates bearer tokens on incoming requests.
// Requests with a rejected token fail with 401, requests without one pass
// through anonymously.
func AuthTokenMiddleware(verifier TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := Authenticate(r.Context(), verifier, AccessTokenFromHeader(r.Header))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"message":"invalid token"}]}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessTokenFromHeader returns the bearer token of the Authorization
// header, empty when there is none.
func AccessTokenFromHeader(header http.Header) string {
	value := strings.TrimSpace(header.Get(authorization))
	if len(value) <= len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(value[len(bearerPrefix):])
}
