package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/logging"
)

// APIKeyAuth checks the X-API-Key header, or an Authorization bearer token,
// against the configured keys. With RequireAPIKey off every request passes;
// with it on and no keys configured every request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := requestAPIKey(r)
			logger := logging.FromContext(r.Context())

			switch {
			case key == "":
				logger.Warn("auth: missing API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				denyRequest(w, http.StatusUnauthorized, "missing API key", "AUTH001")
			case !isValidAPIKey(key, cfg.APIKeys):
				logger.Warn("auth: invalid API key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				denyRequest(w, http.StatusForbidden, "invalid API key", "AUTH002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func denyRequest(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}

// isValidAPIKey compares against every key in constant time, so timing does
// not reveal which key matched.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, k := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}
