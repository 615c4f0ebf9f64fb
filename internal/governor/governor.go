// Package governor implements admission control shared by every dispatcher
// operation. Each operation group carries one or more rolling windows and a
// request is admitted only when all of them have capacity left.
package governor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Group names a category of requests that share one rate-limit policy.
type Group string

const (
	GroupPosition Group = "position"
	GroupChat     Group = "chat"
	GroupSpeech   Group = "speech"
)

// Window allows at most Capacity admissions in any span of Period.
type Window struct {
	Capacity int
	Period   time.Duration
}

func (w Window) String() string {
	return fmt.Sprintf("%d/%s", w.Capacity, w.Period)
}

// Policy maps an operation group to the windows that all must pass.
type Policy map[Group][]Window

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the shortest wait before an exhausted window frees a slot.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Ledger stores timestamped consumption per key. Admit must check every
// window and record one unit in all of them atomically, recording nothing
// when any window is exhausted.
type Ledger interface {
	Admit(ctx context.Context, key string, windows []Window, now time.Time) (Decision, error)
	Close() error
}

var ErrInvalidWindow = errors.New("invalid rate window")

type Governor struct {
	ledger Ledger
	policy Policy
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Governor)

func WithLogger(l *zap.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

func New(ledger Ledger, policy Policy, opts ...Option) *Governor {
	g := &Governor{
		ledger: ledger,
		policy: policy,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAndRecord admits or rejects one request from identity for group.
// Ledger failures are logged and the request is admitted.
func (g *Governor) CheckAndRecord(ctx context.Context, identity string, group Group) Decision {
	windows := g.policy[group]
	if len(windows) == 0 {
		return Decision{Allowed: true}
	}

	d, err := g.ledger.Admit(ctx, ledgerKey(identity, group), windows, g.now())
	if err != nil {
		g.logger.Warn("rate ledger unavailable, admitting request",
			zap.String("group", string(group)),
			zap.Error(err))
		return Decision{Allowed: true}
	}
	if !d.Allowed {
		g.logger.Info("request rejected by rate governor",
			zap.String("identity", identity),
			zap.String("group", string(group)),
			zap.Duration("retry_after", d.RetryAfter))
	}
	return d
}

// Policy returns the windows configured for group.
func (g *Governor) Policy(group Group) []Window {
	return g.policy[group]
}

func (g *Governor) Close() error {
	return g.ledger.Close()
}

func ledgerKey(identity string, group Group) string {
	return string(group) + ":" + identity
}

// ParseWindows parses "10/minute,60/hour" style specifications. Units are
// second, minute, hour and day, or any time.ParseDuration string.
func ParseWindows(s string) ([]Window, error) {
	var windows []Window
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		count, unit, ok := strings.Cut(part, "/")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, part)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || capacity <= 0 {
			return nil, fmt.Errorf("%w: capacity in %q", ErrInvalidWindow, part)
		}
		period, err := parsePeriod(strings.TrimSpace(unit))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidWindow, part, err)
		}
		windows = append(windows, Window{Capacity: capacity, Period: period})
	}
	return windows, nil
}

func parsePeriod(unit string) (time.Duration, error) {
	switch strings.ToLower(unit) {
	case "s", "sec", "second":
		return time.Second, nil
	case "m", "min", "minute":
		return time.Minute, nil
	case "h", "hour":
		return time.Hour, nil
	case "d", "day":
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(unit)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("period must be positive")
	}
	return d, nil
}

func longest(windows []Window) time.Duration {
	var l time.Duration
	for _, w := range windows {
		if w.Period > l {
			l = w.Period
		}
	}
	return l
}
