package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the normalized failure class of a forecasting service call.
// Values double as metric labels.
type ErrorKind string

const (
	KindTimeout ErrorKind = "timeout"
	KindNetwork ErrorKind = "network"
	KindHTTP    ErrorKind = "http"
	KindUnknown ErrorKind = "unknown"
)

// Status codes reserved by the taxonomy.
const (
	StatusNetworkError = 0
	StatusTimeout      = http.StatusRequestTimeout
	StatusUnknown      = http.StatusInternalServerError
)

// Sentinels for errors.Is matching against an *APIError of the same kind.
var (
	ErrTimeout = errors.New("request timeout")
	ErrNetwork = errors.New("network error")
	ErrHTTP    = errors.New("forecast service error")
	ErrUnknown = errors.New("unknown error")
)

// APIError is the only error type GetForecast and GetRegions return.
type APIError struct {
	Kind    ErrorKind `json:"-"`
	Message string    `json:"error"`
	Status  int       `json:"status"`
	Details string    `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels, so errors.Is(err, ErrTimeout) works through wrapping.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

// Timeout reports whether the call exceeded its bound. Safe to retry.
func (e *APIError) Timeout() bool {
	return e.Kind == KindTimeout
}

func newTimeoutError(err error) *APIError {
	return &APIError{
		Kind:    KindTimeout,
		Message: "Request timeout",
		Status:  StatusTimeout,
		Details: "The request took too long to complete",
		Err:     err,
	}
}

func newNetworkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: "Network error",
		Status:  StatusNetworkError,
		Details: "Unable to connect to the forecast service. Please check your network connection.",
		Err:     err,
	}
}

func newHTTPError(status int, message, details string) *APIError {
	return &APIError{
		Kind:    KindHTTP,
		Message: message,
		Status:  status,
		Details: details,
	}
}

func newUnknownError(status int, message string, err error) *APIError {
	if status == 0 {
		status = StatusUnknown
	}
	if message == "" {
		message = "Unknown error"
	}
	return &APIError{
		Kind:    KindUnknown,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
