package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ads-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents rejected or expired platform credentials
	CategoryAuth ErrorCategory = "auth"
	// CategoryRateLimit represents platform throttling (429)
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryTransient represents 5xx responses and timeouts
	CategoryTransient ErrorCategory = "transient"
	// CategoryUpstreamProxy represents non-JSON bodies returned by a proxy or gateway
	CategoryUpstreamProxy ErrorCategory = "upstream_proxy"
	// CategoryData represents malformed remote records
	CategoryData ErrorCategory = "data"
	// CategoryValidation represents invalid caller input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryInternal represents everything else
	CategoryInternal ErrorCategory = "internal"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// RetryAfter returns the server-provided retry hint, if any
func (e *CategorizedError) RetryAfter() time.Duration {
	if e.Details == nil {
		return 0
	}
	if d, ok := e.Details["retryAfter"].(time.Duration); ok {
		return d
	}
	return 0
}

// Platform errors

// NewAuthError creates an auth error. Auth errors are never retried.
func NewAuthError(statusCode int, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuth,
		StatusCode: statusCode,
		Code:       "PLATFORM_AUTH",
		Message:    message,
	}
}

// NewRateLimitError creates a platform rate limit error
func NewRateLimitError(retryAfter time.Duration) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "platform rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewTransientError creates a transient platform error
func NewTransientError(statusCode int, message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: statusCode,
		Code:       "PLATFORM_UNAVAILABLE",
		Message:    message,
		Cause:      cause,
	}
}

// NewUpstreamProxyError creates an error for an HTML or otherwise non-JSON body
func NewUpstreamProxyError(statusCode int, contentType string, snippet string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstreamProxy,
		StatusCode: statusCode,
		Code:       "UPSTREAM_PROXY",
		Message:    fmt.Sprintf("non-JSON response from platform (content-type %q)", contentType),
		Details: map[string]interface{}{
			"contentType": contentType,
			"snippet":     snippet,
		},
	}
}

// NewDataError creates an error for a remote record that cannot be processed
func NewDataError(entity string, id string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryData,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "INVALID_REMOTE_RECORD",
		Message:    fmt.Sprintf("invalid %s %s: %s", entity, id, reason),
		Details: map[string]interface{}{
			"entity": entity,
			"id":     id,
			"reason": reason,
		},
	}
}

// Caller errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewQueueClosedError is returned when enqueueing after shutdown
func NewQueueClosedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInternal,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "QUEUE_CLOSED",
		Message:    "sync queue is shutting down",
	}
}

// System errors

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInternal,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// FromHTTPStatus classifies a non-2xx platform response.
// It returns nil for 2xx statuses.
func FromHTTPStatus(status int, header http.Header, body []byte) *CategorizedError {
	if status >= 200 && status < 300 {
		return nil
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthError(status, fmt.Sprintf("platform rejected credentials: %s", snippet))
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(parseRetryAfter(header))
	case strings.Contains(snippet, "invalid_grant"):
		return NewAuthError(status, "refresh token revoked (invalid_grant)")
	case status >= 500:
		return NewTransientError(status, fmt.Sprintf("platform returned %d", status), nil)
	default:
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: status,
			Code:       "PLATFORM_REJECTED",
			Message:    fmt.Sprintf("platform returned %d: %s", status, snippet),
		}
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Categorize categorizes an existing error, looking through wrapping
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "ACCOUNT_NOT_FOUND", "SCHEDULE_NOT_FOUND", "SYNC_LOG_NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "INVALID_PARAMETER", "INVALID_SCOPE":
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategoryInternal,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

func hasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsRateLimit reports whether err is a platform rate limit signal
func IsRateLimit(err error) bool {
	return hasCategory(err, CategoryRateLimit)
}

// IsAuth reports whether err means the account must be re-authorized
func IsAuth(err error) bool {
	return hasCategory(err, CategoryAuth)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}

	switch catErr.Category {
	case CategoryRateLimit, CategoryTransient, CategoryUpstreamProxy, CategoryDatabase:
		return true
	default:
		return false
	}
}
