package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/divvy/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// RoleKey is the context key for storing the authenticated role.
const RoleKey contextKey = "role"

// GetRole extracts the role from the context.
// Returns empty string if not found.
func GetRole(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}

// IsOwner reports whether the request carries a valid owner token.
func IsOwner(ctx context.Context) bool {
	return GetRole(ctx) == auth.RoleOwner
}

// WithRole returns a context carrying role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// BearerToken parses an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

// OwnerGuard checks owner tokens for both transports. When the
// authenticator requires no password every caller is an owner.
type OwnerGuard struct {
	authn auth.Authenticator
	jwt   *auth.JWTManager
}

// NewOwnerGuard creates a guard.
func NewOwnerGuard(authn auth.Authenticator, jwtManager *auth.JWTManager) *OwnerGuard {
	return &OwnerGuard{authn: authn, jwt: jwtManager}
}

// check returns the context to continue with, or an auth error.
func (g *OwnerGuard) check(ctx context.Context, header string) (context.Context, error) {
	if !g.authn.Required() {
		return WithRole(ctx, auth.RoleOwner), nil
	}
	token, err := BearerToken(header)
	if err != nil {
		return ctx, err
	}
	claims, err := g.jwt.Validate(token)
	if err != nil {
		return ctx, err
	}
	return WithRole(ctx, claims.Role), nil
}

// Identify adds the owner role to the context when a valid token is present,
// but allows requests without authentication. Participant endpoints use it.
func (g *OwnerGuard) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, err := g.check(r.Context(), r.Header.Get("Authorization")); err == nil {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwner rejects HTTP requests without a valid owner token with 401.
func (g *OwnerGuard) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := g.check(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			detail := "Invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				detail = "Authentication required"
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Interceptor returns a Connect interceptor that requires an owner token on
// every procedure except the public ones.
func (g *OwnerGuard) Interceptor(public ...string) connect.UnaryInterceptorFunc {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authed, err := g.check(ctx, req.Header().Get("Authorization"))
			if err == nil {
				ctx = authed
			} else if !open[req.Spec().Procedure] {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(ctx, req)
		}
	}
}
