package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// normalizeError maps a transport-level error to the taxonomy. ctx is the
// per-call context, so a deadline hit anywhere in the call (dial, headers,
// body read) is reported as a timeout even when the transport wraps it oddly.
func normalizeError(ctx context.Context, err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeoutError(err)
	}

	if errors.Is(err, context.Canceled) {
		return newUnknownError(StatusUnknown, "Request canceled", err)
	}

	if isTransportFailure(err) {
		return newNetworkError(err)
	}
	return newUnknownError(StatusUnknown, err.Error(), err)
}

// isTransportFailure reports errors where no usable response was received.
func isTransportFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// CategorizeError returns the ErrorKind of any error, for metrics and gateway
// responses. Errors outside the taxonomy are classified as they would be on a call.
func CategorizeError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return normalizeError(context.Background(), err).Kind
}
