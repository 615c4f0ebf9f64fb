package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/sony/gobreaker"
)

var (
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrQuotaExhausted    = errors.New("provider quota exhausted")
)

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.Code, e.Body)
}

// Classify maps an error from a provider call onto a Reason.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ReasonCircuitOpen
	case errors.Is(err, ErrQuotaExhausted):
		return ReasonQuotaExhausted
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformed
	case errors.As(err, &statusErr):
		return ReasonBadStatus
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	default:
		return ReasonUnavailable
	}
}

// Redact drops the request URL from transport errors. Provider URLs can carry
// the credential as a query parameter.
func Redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
