// Package apierr defines the error taxonomy shared by the resilience layer.
// It classifies errors from external API calls into kinds so that retry
// policies can decide which failures are worth retrying.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind identifies the broad category of an API error.
// Retry policies declare the set of kinds they are willing to retry.
type Kind int

const (
	// KindUnknown is the zero value for unclassifiable errors.
	KindUnknown Kind = iota

	// KindNetwork covers connection-level failures (refused, reset, unreachable).
	KindNetwork

	// KindTimeout covers deadline and network timeout failures.
	KindTimeout

	// KindServerError covers HTTP 5xx responses.
	KindServerError

	// KindRateLimited covers HTTP 429 responses.
	KindRateLimited

	// KindBadRequest covers HTTP 4xx responses other than auth/not-found/429/408.
	KindBadRequest

	// KindAuth covers HTTP 401 and 403 responses.
	KindAuth

	// KindNotFound covers HTTP 404 responses.
	KindNotFound

	// KindCanceled covers context cancellation. Never retryable.
	KindCanceled
)

// String returns the snake_case name of the kind, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindRateLimited:
		return "rate_limited"
	case KindBadRequest:
		return "bad_request"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// APIError represents a failed call against an external API.
type APIError struct {
	// API names the remote service, e.g. "github" or "claude".
	API string

	// StatusCode is the HTTP status code, 0 when the failure happened
	// before a response was received.
	StatusCode int

	// Message is a short human-readable description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api: HTTP %d: %s", e.API, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api: %s", e.API, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Kind classifies the API error by its status code.
func (e *APIError) Kind() Kind {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case e.StatusCode == http.StatusRequestTimeout:
		return KindTimeout
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return KindAuth
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return KindServerError
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return KindBadRequest
	case e.Err != nil:
		return KindOf(e.Err)
	default:
		return KindUnknown
	}
}

// FromStatus builds an APIError for an HTTP response status.
func FromStatus(api string, statusCode int, message string) *APIError {
	return &APIError{API: api, StatusCode: statusCode, Message: message}
}

// Wrap builds an APIError around a transport-level failure.
func Wrap(api string, err error) *APIError {
	return &APIError{API: api, Message: err.Error(), Err: err}
}

// KindOf classifies an arbitrary error into a Kind.
// Context cancellation always classifies as KindCanceled so that retry
// policies can never retry an abandoned attempt.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindNetwork
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return KindTimeout
	}

	return KindUnknown
}
