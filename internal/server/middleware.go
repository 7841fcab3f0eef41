package server

import (
	"context"
	"net/http"
)

type contextKey string

const userContextKey contextKey = "arbiter_user"

// requireAuth resolves the caller via Server.auth and attaches the user ID
// to the request context, or responds 401 if authentication fails.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(r *http.Request) string {
	u, _ := r.Context().Value(userContextKey).(string)
	return u
}
