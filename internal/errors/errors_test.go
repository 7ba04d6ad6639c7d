package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", ValidationError("recipientId is required"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unauthorized", UnauthorizedError(), http.StatusUnauthorized, "IDENTITY_MISSING"},
		{"not found", NotFoundError("n1"), http.StatusNotFound, "NOTIFICATION_NOT_FOUND"},
		{"rate limit", RateLimitedError("notify"), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"connection cap", ConnectionLimitError("u1", 5), http.StatusTooManyRequests, "CONNECTION_LIMIT_EXCEEDED"},
		{"persistence", PersistenceError("create", errors.New("boom")), http.StatusServiceUnavailable, "PERSISTENCE_FAILED"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteHTTP(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tc.wantCode)
			}
			if body.Error == "" {
				t.Fatal("response carries no user message")
			}
		})
	}
}

func TestWriteHTTPRateLimitRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, RateLimitedError("stream"))
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("rate-limited response missing Retry-After")
	}
}

func TestWriteHTTPHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, fmt.Errorf("dial tcp 10.0.0.12:5432: connection refused"))

	if got := rec.Body.String(); strings.Contains(got, "10.0.0.12") || strings.Contains(got, "dial tcp") {
		t.Fatalf("internal detail leaked to client: %s", got)
	}
}

func TestAsAppErrorUnwrapsChain(t *testing.T) {
	inner := NotFoundError("n1")
	wrapped := fmt.Errorf("handling request: %w", inner)

	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("AsAppError failed to find the AppError in the chain")
	}
	if appErr.Type != TypeNotFound {
		t.Fatalf("type = %q, want %q", appErr.Type, TypeNotFound)
	}
}
