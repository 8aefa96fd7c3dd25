package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lockblip/server/internal/auth"
)

type contextKey string

const usernameKey contextKey = "username"

// GhostTokenHeader carries the Ghost Mode unlock session token on requests
// that require an unlocked state. Distinct from the bearer token, which only
// proves identity.
const GhostTokenHeader = "X-Ghost-Token"

// AuthMiddleware validates JWT bearer tokens and attaches the authenticated
// username to the request context. Identity is owned by the external LockBlip
// auth service; the token is the whole proof.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUsername extracts the authenticated username from the request context.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok && username != ""
}

// GhostToken extracts the Ghost Mode unlock token header, if present.
func GhostToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(GhostTokenHeader))
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
