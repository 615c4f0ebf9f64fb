package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Quota is a provider-wide call budget shared by every caller.
type Quota interface {
	Allow(ctx context.Context, provider string) (bool, error)
}

// Options holds the construction-time settings common to every client.
type Options struct {
	BaseURL       string
	Model         string
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Quota         Quota
	ForceFallback bool
	Now           func() time.Time
}

type Option func(*Options)

func WithBaseURL(u string) Option {
	return func(o *Options) { o.BaseURL = u }
}

func WithModel(m string) Option {
	return func(o *Options) {
		if m != "" {
			o.Model = m
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithQuota applies a provider-wide budget. A nil quota disables it.
func WithQuota(q Quota) Option {
	return func(o *Options) { o.Quota = q }
}

// WithForceFallback puts the client in fallback-only mode even when a
// credential is present.
func WithForceFallback(force bool) Option {
	return func(o *Options) { o.ForceFallback = force }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// BuildOptions applies opts over the defaults for a client talking to baseURL.
func BuildOptions(baseURL, model string, opts ...Option) Options {
	o := Options{
		BaseURL:    baseURL,
		Model:      model,
		HTTPClient: NewHTTPClient(),
		Logger:     zap.NewNop(),
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Spend takes one call from the quota. Quota store errors are logged and the
// call goes ahead.
func Spend(ctx context.Context, q Quota, name string, logger *zap.Logger) error {
	if q == nil {
		return nil
	}
	ok, err := q.Allow(ctx, name)
	if err != nil {
		logger.Warn("provider quota unavailable", zap.String("provider", name), zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrQuotaExhausted)
	}
	return nil
}
