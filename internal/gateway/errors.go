package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the unified error interface returned by the gateway client.
type Error interface {
	error
	Model() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

type httpErrorBase struct {
	model      string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
}

func (e *httpErrorBase) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s (status=%d): %s", e.model, e.statusCode, msg)
}
func (e *httpErrorBase) Model() string              { return e.model }
func (e *httpErrorBase) StatusCode() int            { return e.statusCode }
func (e *httpErrorBase) Retryable() bool            { return e.retryable }
func (e *httpErrorBase) RetryAfter() *time.Duration { return e.retryAfter }

// AuthError: 401/403. The credential is bad for every model, so callers
// abort the whole run rather than falling back.
type AuthError struct{ httpErrorBase }

// PaymentRequiredError: 402, insufficient credit upstream.
type PaymentRequiredError struct{ httpErrorBase }

// RateLimitedError: 429. Eligible for exactly one short retry before the
// caller moves to the fallback model.
type RateLimitedError struct{ httpErrorBase }

// UpstreamError: 5xx or any other non-2xx status.
type UpstreamError struct{ httpErrorBase }

// TransportError wraps dial/TLS/read failures that never produced a status.
type TransportError struct {
	ModelID string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.ModelID, e.Err)
}
func (e *TransportError) Unwrap() error              { return e.Err }
func (e *TransportError) Model() string              { return e.ModelID }
func (e *TransportError) StatusCode() int            { return 0 }
func (e *TransportError) Retryable() bool            { return true }
func (e *TransportError) RetryAfter() *time.Duration { return nil }

// TimeoutError: the per-attempt budget elapsed before a complete response.
type TimeoutError struct {
	ModelID string
	Budget  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no complete response within %s", e.ModelID, e.Budget)
}
func (e *TimeoutError) Model() string              { return e.ModelID }
func (e *TimeoutError) StatusCode() int            { return 0 }
func (e *TimeoutError) Retryable() bool            { return true }
func (e *TimeoutError) RetryAfter() *time.Duration { return nil }

// MidStreamError: HTTP 200 whose first choice finished with reason "error".
// The payload is unusable even though the transport succeeded.
type MidStreamError struct {
	ModelID string
	Message string
}

func (e *MidStreamError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "provider aborted mid-stream"
	}
	return fmt.Sprintf("%s: %s", e.ModelID, msg)
}
func (e *MidStreamError) Model() string              { return e.ModelID }
func (e *MidStreamError) StatusCode() int            { return http.StatusOK }
func (e *MidStreamError) Retryable() bool            { return true }
func (e *MidStreamError) RetryAfter() *time.Duration { return nil }

// errorFromStatus classifies a non-2xx response into the gateway hierarchy.
func errorFromStatus(model string, statusCode int, message string, retryAfter *time.Duration) error {
	base := httpErrorBase{
		model:      model,
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		base.retryable = false
		return &AuthError{base}
	case http.StatusPaymentRequired:
		base.retryable = false
		return &PaymentRequiredError{base}
	case http.StatusTooManyRequests:
		base.retryable = true
		return &RateLimitedError{base}
	default:
		base.retryable = statusCode >= 500
		return &UpstreamError{base}
	}
}

// parseRetryAfter parses a Retry-After header as integer seconds or HTTP-date.
func parseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// IsRateLimited reports whether err is (or wraps) a 429 classification.
func IsRateLimited(err error) bool {
	var e *RateLimitedError
	return errors.As(err, &e)
}

// IsAuth reports whether err is (or wraps) a credential failure.
func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsRetryable reports whether err permits another attempt against the same
// model within the same chain step.
func IsRetryable(err error) bool {
	var ge Error
	if errors.As(err, &ge) {
		return ge.Retryable()
	}
	return false
}
