package auth

import (
	"encoding/json"
	"net/http"
)

// Middleware returns HTTP middleware enforcing the key on every request.
// A missing or wrong key gets 401 with a JSON error body.
func (a APIKey) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.enabled() && !a.matches(r.Header.Get(a.Header)) {
			unauthorized(w, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
