package auth

import (
	"net/http"
	"strings"

	"snapfeed/pkg/logger"
	"snapfeed/pkg/utils"
)

// Gateway authenticates every request: CORS headers, API-key role
// resolution, and health-check passthrough. It sets X-Role-Name for
// downstream middleware and handlers.
func Gateway(cfg SecConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// allow unauthenticated health checks for probes
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				r.Header.Set("X-Role-Name", "unauth")
				next.ServeHTTP(w, r)
				return
			}

			role, _ := authenticate(r, cfg)
			if role == RoleUnauth {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}
			r.Header.Set("X-Role-Name", role.Name())
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSubject verifies the HMAC-signed subject headers and injects the
// verified subject into the request context. Backend callers may pass a bare
// X-User-ID without a signature; anyone else must sign.
func RequireSubject(cfg SecConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := r.Header.Get("X-Role-Name")
			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))

			if role == "backend" && sig == "" {
				if userID != "" {
					r = r.WithContext(WithSubject(r.Context(), userID))
				}
				next.ServeHTTP(w, r)
				return
			}

			if sig == "" || userID == "" {
				logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
				return
			}
			if len(cfg.SigningKeys) == 0 {
				logger.Error("no_signing_keys_configured")
				utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
				return
			}
			if !cfg.VerifySubject(userID, sig) {
				logger.Warn("invalid_signature", "user", userID)
				utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), userID)))
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
