// Package api provides the HTTP handlers of the feed API and its
// standardized error responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/middleware"
)

// Error codes returned in the error envelope.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeMethodNotAllowed indicates the route does not accept the method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeCancelled indicates the request was cancelled or timed out
	// before a response could be assembled.
	ErrCodeCancelled = "cancelled"

	// ErrCodeUpstreamUnavailable indicates the social graph or content
	// catalog failed or its circuit breaker is open.
	ErrCodeUpstreamUnavailable = "upstream_unavailable"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code for
// the request logging middleware.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeCancelled, ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// feedErrorCode maps a feed error to its API error code and client message.
func feedErrorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, feed.ErrViewerNotFound):
		return ErrCodeNotFound, "Viewer not found"
	case errors.Is(err, feed.ErrInvalidPageRequest):
		return ErrCodeValidation, "page and page_size must be at least 1"
	case errors.Is(err, feed.ErrCancelled):
		return ErrCodeCancelled, "Request cancelled before the feed was ready"
	case errors.Is(err, feed.ErrUpstreamFailure):
		return ErrCodeUpstreamUnavailable, "Feed temporarily unavailable"
	default:
		return ErrCodeInternal, "Internal server error"
	}
}

// writeFeedError writes the error response for a feed error.
func writeFeedError(w http.ResponseWriter, ctx context.Context, err error) {
	code, message := feedErrorCode(err)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}
