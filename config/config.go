package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vnmchuo/space-explorer/internal/governor"
)

type Config struct {
	// Server
	Port     string // default: 8080
	LogLevel string // default: info

	// TrustedProxies may name the client in X-Forwarded-For. Empty: identity
	// is the connection's remote address.
	TrustedProxies []netip.Prefix

	// Providers. An empty key puts that provider in fallback-only mode.
	N2YOAPIKey   string
	GoogleAPIKey string
	TTSAPIKey    string // default: GoogleAPIKey
	GeminiModel  string // default: gemini-2.0-flash
	MockMode     bool

	// Rate Limiting
	RedisURL               string // empty: in-memory ledger
	RatePolicy             governor.Policy
	ProviderQuotaPerMinute int64 // 0 disables the provider-wide quota

	// Observability
	OTELExporterType     string // "none", "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
}

const (
	DefaultPositionLimits = "100/minute,1000/hour"
	DefaultChatLimits     = "10/minute,60/hour"
	DefaultSpeechLimits   = "5/minute,30/hour"
)

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		N2YOAPIKey:           strings.TrimSpace(os.Getenv("N2YO_API_KEY")),
		GoogleAPIKey:         strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		RedisURL:             os.Getenv("REDIS_URL"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "none"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}
	cfg.TTSAPIKey = strings.TrimSpace(getEnv("TTS_API_KEY", cfg.GoogleAPIKey))

	mock, err := strconv.ParseBool(getEnv("MOCK_MODE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCK_MODE: %w", err)
	}
	cfg.MockMode = mock

	// memory:// mirrors the flask-limiter convention for "no shared store"
	if cfg.RedisURL == "memory://" {
		cfg.RedisURL = ""
	}

	cfg.RatePolicy = governor.Policy{}
	limits := []struct {
		group governor.Group
		env   string
		def   string
	}{
		{governor.GroupPosition, "RATE_LIMIT_POSITION", DefaultPositionLimits},
		{governor.GroupChat, "RATE_LIMIT_CHAT", DefaultChatLimits},
		{governor.GroupSpeech, "RATE_LIMIT_SPEECH", DefaultSpeechLimits},
	}
	for _, l := range limits {
		windows, err := governor.ParseWindows(getEnv(l.env, l.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", l.env, err)
		}
		cfg.RatePolicy[l.group] = windows
	}

	quota, err := strconv.ParseInt(getEnv("PROVIDER_QUOTA_PER_MINUTE", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_QUOTA_PER_MINUTE: %w", err)
	}
	if quota < 0 {
		return nil, fmt.Errorf("PROVIDER_QUOTA_PER_MINUTE must not be negative")
	}
	cfg.ProviderQuotaPerMinute = quota

	proxies, err := parseProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	// Validation
	switch cfg.OTELExporterType {
	case "none", "stdout", "otlp":
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", cfg.OTELExporterType)
	}

	return cfg, nil
}

// RateLimitStore names the ledger backend in use.
func (c *Config) RateLimitStore() string {
	if c.RedisURL != "" {
		return "redis"
	}
	return "memory"
}

// getEnv treats an empty variable as unset.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// parseProxies reads a comma-separated list of CIDRs or bare addresses.
func parseProxies(list string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
