package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/veranda-social/pushgate/internal/errors"
	"github.com/veranda-social/pushgate/internal/limiter"
	"github.com/veranda-social/pushgate/internal/metrics"
)

type contextKey string

const identityKey contextKey = "pushgate.identity"

// identityFrom returns the authenticated user identity stored by
// requireIdentity. Empty only on routes that skip the middleware.
func identityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

// requireIdentity reads the identity the upstream API gateway established and
// forwarded in X-User-ID. Requests without it never reach the handler.
func requireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			apperrors.WriteHTTP(w, apperrors.UnauthorizedError())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, userID)))
	}
}

// rateLimit rejects the request before any handler side effect when the
// policy's window is exhausted for this client.
func (h *Handler) rateLimit(policy limiter.Policy, next http.HandlerFunc) http.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		d := h.limiter.Check(r.Context(), policy, ClientIdentity(r))
		if !d.Allowed {
			apperrors.WriteHTTP(w, apperrors.RateLimitedError(policy.Prefix))
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the status code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the recorder transparent for streaming responses.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument records request counts and latency per route.
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}
