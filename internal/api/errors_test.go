package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/middleware"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v, body: %s", err, rr.Body.String())
	}
	return resp
}

func TestWriteError_BasicFields(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, context.Background(), http.StatusNotFound, ErrCodeNotFound, "Viewer not found")

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected JSON content type, got %s", ct)
	}

	resp := decodeError(t, rr)
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, resp.Error.Code)
	}
	if resp.Error.Message != "Viewer not found" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
}

func TestWriteError_RecordsCodeForLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeUpstreamUnavailable, "down")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))

	var entry struct {
		ErrorCode string `json:"error_code"`
		Level     string `json:"level"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.ErrorCode != ErrCodeUpstreamUnavailable {
		t.Errorf("expected error_code %s in log, got %q", ErrCodeUpstreamUnavailable, entry.ErrorCode)
	}
	if entry.Level != "ERROR" {
		t.Errorf("expected ERROR level for 503, got %s", entry.Level)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeAuthFailed, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeCancelled, http.StatusServiceUnavailable},
		{ErrCodeUpstreamUnavailable, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusCodeMapping(tt.code); got != tt.want {
				t.Errorf("StatusCodeMapping(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestFeedErrorCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"viewer not found", fmt.Errorf("%w: get following: %w", feed.ErrViewerNotFound, cause), ErrCodeNotFound},
		{"invalid page", fmt.Errorf("%w: page=0 page_size=20", feed.ErrInvalidPageRequest), ErrCodeValidation},
		{"cancelled", fmt.Errorf("%w: list: %w", feed.ErrCancelled, context.Canceled), ErrCodeCancelled},
		{"upstream", fmt.Errorf("%w: list: %w", feed.ErrUpstreamFailure, cause), ErrCodeUpstreamUnavailable},
		{"unexpected", cause, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := feedErrorCode(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
			if strings.Contains(message, "connection refused") {
				t.Errorf("message leaks internal cause: %q", message)
			}
		})
	}
}
