package chi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/logger"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

// ErrorCode is the machine-readable error code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeNotFound               ErrorCode = "not_found"
	CodeProfileNotFound        ErrorCode = "profile_not_found"
	CodeGrantNotFound          ErrorCode = "grant_not_found"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeTemporarilyUnavailable ErrorCode = "temporarily_unavailable"
	CodeQueueFull              ErrorCode = "queue_full"
	CodeFeatureDisabled        ErrorCode = "feature_disabled"
	CodeTimeout                ErrorCode = "timeout"
	CodeClientClosed           ErrorCode = "client_closed_request"
	CodeInternalError          ErrorCode = "internal_error"
)

// StatusClientClosedRequest is written when the caller went away mid-request.
const StatusClientClosedRequest = 499

const (
	defaultRateLimitRetry   = time.Second
	defaultUnavailableRetry = 5 * time.Second
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers is ordered from the most to the least specific error.
func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrProfileNotFound, http.StatusNotFound, CodeProfileNotFound),
		sentinelHandler(domain.ErrGrantNotFound, http.StatusNotFound, CodeGrantNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		retryHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, defaultRateLimitRetry),
		retryHandler(domain.ErrUnavailable, http.StatusServiceUnavailable,
			CodeTemporarilyUnavailable, defaultUnavailableRetry),
		retryHandler(taskqueue.ErrQueueFull, http.StatusServiceUnavailable, CodeQueueFull, defaultRateLimitRetry),
		retryHandler(taskqueue.ErrQueueClosed, http.StatusServiceUnavailable,
			CodeTemporarilyUnavailable, defaultUnavailableRetry),
		sentinelHandler(domain.ErrFeatureDisabled, http.StatusNotImplemented, CodeFeatureDisabled),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(context.Canceled, StatusClientClosedRequest, CodeClientClosed),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// validationHandler reports the offending field of a validation error.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	resp := ErrorResponse{Code: CodeValidationFailed, Message: domain.ErrValidation.Error()}
	var fe *domain.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.Field
		resp.Message = fe.Reason
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// retryHandler is sentinelHandler plus a Retry-After header. The hint carried
// by a rate limit error wins over fallback.
func retryHandler(sentinel error, status int, code ErrorCode, fallback time.Duration) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		after := fallback
		if d, ok := domain.RetryAfter(err); ok {
			after = d
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(after.Seconds()))))
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
