package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rowbase/rowbase/pkg/respond"
)

// requireAPIKey gates a route group on the X-API-Key header. Configured
// keys beginning with "$2" are bcrypt hashes; anything else is compared in
// constant time as plaintext.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			respond.Error(w, http.StatusUnauthorized, "missing_api_key", "X-API-Key header required")
			return
		}
		for _, key := range h.keys {
			if matchKey(key, presented) {
				next.ServeHTTP(w, r)
				return
			}
		}
		h.logger.Warn().Str("path", r.URL.Path).Msg("rejected api key")
		respond.Error(w, http.StatusUnauthorized, "invalid_api_key", "the provided API key is invalid")
	})
}

func matchKey(configured, presented string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
