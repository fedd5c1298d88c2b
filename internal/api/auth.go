package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearer validates "Authorization: Bearer <token>" headers. An empty
// token disables authentication.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
