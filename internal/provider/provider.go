package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/vnmchuo/space-explorer/internal/conversation"
)

// Timeout bounds every outbound provider call.
const Timeout = 10 * time.Second

// SourceFallback is the source reported for every fallback payload.
const SourceFallback = "fallback"

type Kind int

const (
	Success Kind = iota
	Fallback
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Fallback:
		return "fallback"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Reason classifies why a call did not succeed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotConfigured  Reason = "not_configured"
	ReasonTimeout        Reason = "timeout"
	ReasonUnavailable    Reason = "unavailable"
	ReasonBadStatus      Reason = "bad_status"
	ReasonMalformed      Reason = "malformed_response"
	ReasonCircuitOpen    Reason = "circuit_open"
	ReasonQuotaExhausted Reason = "quota_exhausted"
)

// Result is the outcome of one provider call. Success and Fallback always
// carry a complete payload; Failure carries only a message.
type Result[T any] struct {
	Kind    Kind
	Payload T
	Reason  Reason
	Message string
}

func Succeeded[T any](payload T) Result[T] {
	return Result[T]{Kind: Success, Payload: payload}
}

func FellBack[T any](payload T, reason Reason) Result[T] {
	return Result[T]{Kind: Fallback, Payload: payload, Reason: reason}
}

func Failed[T any](reason Reason, message string) Result[T] {
	return Result[T]{Kind: Failure, Reason: reason, Message: message}
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type Position struct {
	SatelliteName string
	Latitude      float64
	Longitude     float64
	AltitudeKm    float64
	Timestamp     int64
}

type Answer struct {
	Text string
}

// Audio is base64 encoded audio. Available is false for the explicit
// "unavailable" marker returned by an unconfigured speech client.
type Audio struct {
	Available bool
	Data      string
	Encoding  string
}

type PositionClient interface {
	Position(ctx context.Context, at Coordinates) Result[Position]
	Name() string
	Configured() bool
}

type ChatClient interface {
	Ask(ctx context.Context, question string, history []conversation.Turn) Result[Answer]
	Name() string
	Configured() bool
}

type SpeechClient interface {
	Synthesize(ctx context.Context, text string) Result[Audio]
	Name() string
	Configured() bool
}

// NewHTTPClient returns a client whose requests never outlive Timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: Timeout}
}
