package auth

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/dicklesworthstone/agentmail/internal/logger"
)

// forwardedHeaders are checked to detect a request that only *looks*
// loopback because it arrived through a reverse proxy on 127.0.0.1 — any
// of these present disables the loopback bypass outright (spec §4.7:
// "forwarded-header detection disables bypass").
var forwardedHeaders = []string{"X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto", "Forwarded", "X-Real-IP"}

// Middleware enforces spec §4.7's auth model: a request carrying a valid
// `Authorization: Bearer <token>` matching bearerToken is admitted; absent
// that, a request from a loopback address with no forwarded-for-style
// header is admitted only if allowLocalhost is set; everything else is
// rejected. An empty bearerToken with allowLocalhost disabled rejects every
// request, loopback included — that combination is the operator's choice
// to make, not this middleware's to second-guess.
func Middleware(bearerToken string, allowLocalhost bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := &AuthContext{}

			if hdr := r.Header.Get("Authorization"); bearerToken != "" && strings.HasPrefix(hdr, "Bearer ") {
				if strings.TrimPrefix(hdr, "Bearer ") == bearerToken {
					authCtx.ViaBearer = true
				}
			}

			if !authCtx.ViaBearer && allowLocalhost && isLoopback(r) && !hasForwardedHeader(r) {
				authCtx.ViaLoopback = true
			}

			if !authCtx.Authenticated() {
				logger.Printf("auth: rejected request from %s", r.RemoteAddr)
				jsonError(w, "Authentication required (Bearer token)", http.StatusUnauthorized)
				return
			}

			ctx := WithContext(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func hasForwardedHeader(r *http.Request) bool {
	for _, h := range forwardedHeaders {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	return false
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    -32001,
			"message": message,
		},
		"id": nil,
	})
}
