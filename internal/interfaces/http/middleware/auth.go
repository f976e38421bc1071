package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
)

// APIKeyAuth rejects requests that do not carry one of the configured keys in
// the X-API-Key header or as a bearer token. With no keys configured every
// request passes.
type APIKeyAuth struct {
	keys   [][]byte
	logger logging.Logger
}

// NewAPIKeyAuth creates the middleware. Empty keys are ignored.
func NewAPIKeyAuth(keys []string, logger logging.Logger) *APIKeyAuth {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &APIKeyAuth{logger: logger}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.keys) > 0 }

func (a *APIKeyAuth) valid(key string) bool {
	if key == "" {
		return false
	}
	ok := 0
	for _, k := range a.keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return ok == 1
}

// Handler enforces the key check on next.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.valid(extractAPIKey(r)) {
			a.logger.Warn("request rejected: missing or unknown API key",
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr))
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractAPIKey reads X-API-Key, falling back to a bearer token.
func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="fpindex"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": "a valid API key is required",
	})
}

//Personal.AI order the ending
