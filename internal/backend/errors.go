package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

var (
	// ErrMalformed marks a reply that arrived but cannot be used.
	ErrMalformed = errors.New("malformed response")
	// ErrUnsupported marks a request the backend kind cannot serve.
	ErrUnsupported = errors.New("unsupported by backend")
	// ErrTimeout marks an attempt that ran past the per-call timeout.
	ErrTimeout = errors.New("call timed out")
)

// StatusError carries the HTTP status of a failed remote call.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// AttemptError is returned by Client.Call once retries are exhausted or a
// terminal error occurred.
type AttemptError struct {
	Identity Identity
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", e.Identity.Name, e.Attempts, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth another attempt: timeouts,
// connection failures, 429 and 5xx. Everything else is terminal, including
// replies that arrived but could not be decoded.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnsupported) || errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// The server closed the connection before answering.
	var ue *url.Error
	if errors.As(err, &ue) && errors.Is(ue.Err, io.EOF) {
		return true
	}
	return false
}
