package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/feedrank/internal/auth"
)

// TokenValidator validates bearer tokens. Implemented by *auth.TokenService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" access
// token with 401 and stores the token subject as the viewer ID otherwise.
// metrics may be nil.
func RequireAuth(validator TokenValidator, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				rejectAuth(w, r, metrics, "missing", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					rejectAuth(w, r, metrics, "expired", "Token has expired")
					return
				}
				rejectAuth(w, r, metrics, "invalid", "Invalid token")
				return
			}

			ctx := SetViewerID(r.Context(), claims.ViewerID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectAuth(w http.ResponseWriter, r *http.Request, metrics *Metrics, reason, message string) {
	if metrics != nil {
		metrics.IncAuthFailures(reason)
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="feedrank"`)
	writeError(w, r, http.StatusUnauthorized, "auth_failed", message)
}

// writeError writes the API's JSON error envelope. It mirrors api.WriteError,
// which this package cannot import.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", "error", err)
	}
}
