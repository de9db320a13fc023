package httpapi

import (
	"context"
	"net/http"
	"strings"

	"mediationflow/identity"
)

type contextKey string

const actorKey contextKey = "httpapi.actor"

// Actor is the authenticated participant attached to a request. The token
// claims are trusted for identity resolution; role-sensitive operations
// (pause, decision) re-check the role server-side regardless.
type Actor struct {
	UserID string
	Role   identity.Role
}

// TokenVerifier validates a bearer token; implemented by identity.Service.
type TokenVerifier interface {
	VerifyToken(token string) (string, identity.Role, error)
}

func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, role, err := verifier.VerifyToken(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, Actor{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(r *http.Request) Actor {
	actor, _ := r.Context().Value(actorKey).(Actor)
	return actor
}
