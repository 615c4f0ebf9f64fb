package provider

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewBreaker returns the circuit breaker guarding one provider client. It
// opens after three consecutive failures and stays open for 30 seconds, during
// which calls go straight to the fallback path without touching the network.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// Guard runs call through the breaker.
func Guard[T any](cb *gobreaker.CircuitBreaker, call func() (T, error)) (T, error) {
	var zero T
	out, err := cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
