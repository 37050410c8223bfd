package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrUnexpected     ErrorCode = "UNEXPECTED_STATUS"
)

// DefaultRetryAfter is used when a Retry-After header is present but unparseable.
const DefaultRetryAfter = 5 * time.Second

// APIError is a non-2xx response from an upstream API.
type APIError struct {
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code"`
	Method     string      `json:"method,omitempty"`
	URL        string      `json:"url,omitempty"`
	Body       string      `json:"body,omitempty"`
	Header     http.Header `json:"-"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, statusCode int) APIError {
	return APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// FromResponse builds an APIError from a response whose body was already read.
func FromResponse(resp *http.Response, body []byte) APIError {
	apiErr := NewAPIError(MapHTTPStatusToCode(resp.StatusCode),
		fmt.Sprintf("request failed with status code %d", resp.StatusCode), resp.StatusCode)
	apiErr.Body = strings.TrimSpace(string(body))
	apiErr.Header = resp.Header
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.URL = resp.Request.URL.String()
	}
	return apiErr
}

func MapHTTPStatusToCode(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 500:
		return ErrInternalServer
	case status >= 400:
		return ErrBadRequest
	default:
		return ErrUnexpected
	}
}

// As extracts an APIError from a wrapped error chain.
func As(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return APIError{}, false
}

func IsNotFound(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == ErrNotFound
}

func IsRateLimited(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == ErrRateLimited
}

// Detail is the text reported for a failed call: the response body when there is one,
// otherwise the error message.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := As(err); ok && apiErr.Body != "" {
		return apiErr.Body
	}
	return err.Error()
}

// RetryAfter reads the server's wait directive from a 429 error. ok is false when the
// error is not a rate limit or carries no Retry-After header.
func RetryAfter(err error, now time.Time) (time.Duration, bool) {
	apiErr, ok := As(err)
	if !ok || apiErr.Code != ErrRateLimited || apiErr.Header == nil {
		return 0, false
	}
	value := strings.TrimSpace(apiErr.Header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	return ParseRetryAfter(value, now), true
}

// ParseRetryAfter accepts delay-seconds or an HTTP-date. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
		return 0
	}
	return DefaultRetryAfter
}
