package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
)

// httpStatus maps error types to response codes.
func httpStatus(t ErrorType) int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimit, TypeCapacity:
		return http.StatusTooManyRequests
	case TypePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteHTTP renders err as a JSON response. Unknown errors become opaque 500s
// so internal detail never leaks to clients.
func WriteHTTP(w http.ResponseWriter, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = Wrap(err, TypeInternal, "INTERNAL_ERROR", "unhandled error").
			WithUserMessage("Internal server error")
	}

	switch appErr.Severity {
	case SeverityHigh, SeverityCritical:
		logger.Error("request failed",
			zap.String("code", appErr.Code),
			zap.String("type", string(appErr.Type)),
			zap.Error(appErr))
	default:
		logger.Debug("request rejected",
			zap.String("code", appErr.Code),
			zap.String("type", string(appErr.Type)),
			zap.Error(appErr))
	}

	msg := appErr.UserMessage
	if msg == "" {
		msg = "Internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	if appErr.Type == TypeRateLimit {
		w.Header().Set("Retry-After", "60")
	}
	w.WriteHeader(httpStatus(appErr.Type))
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: appErr.Code})
}
