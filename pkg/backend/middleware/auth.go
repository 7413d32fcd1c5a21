package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

type AuthConfig struct {
	Enabled     bool
	APIPassword string
	APIKeyEnv   string
	PublicPaths []string
}

// Auth checks inbound calls for the configured API key, sent either as a
// bearer token or in x-api-key. It never touches the upstream credentials.
func Auth(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			for _, path := range config.PublicPaths {
				if r.URL.Path == path || strings.HasPrefix(r.URL.Path, strings.TrimSuffix(path, "/")+"/") {
					next.ServeHTTP(w, r)
					return
				}
			}

			expectedKey := config.APIPassword
			if expectedKey == "" && config.APIKeyEnv != "" {
				expectedKey = os.Getenv(config.APIKeyEnv)
			}

			if expectedKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !keyMatches(presentedKey(r), expectedKey) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Api-Key")
}

func keyMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
