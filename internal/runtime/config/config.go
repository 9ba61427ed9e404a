package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by WithDefaults for zero-valued fields.
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8080
	DefaultMaxBodyBytes     = 1 << 20   // 1 MiB
	DefaultMaxURLLength     = 2048
	DefaultMaxHeaderCount   = 100
	DefaultMaxHeaderBytes   = 16 << 10 // 16 KiB
	DefaultMaxResponseBytes = 4 << 20  // 4 MiB
	DefaultRequestTimeout   = 30 * time.Second
	DefaultIdleTimeout      = 65 * time.Second
	DefaultHeaderTimeout    = 10 * time.Second
	DefaultDrainTimeout     = 30 * time.Second
	DefaultRequestIDHeader  = "X-Request-Id"

	DefaultRateLimitMaxRequests     = 100
	DefaultRateLimitWindow          = time.Minute
	DefaultRateLimitMaxKeys         = 10000
	DefaultRateLimitCleanupInterval = time.Minute
)

// RateLimitConfig tunes the token-bucket admission-control middleware.
type RateLimitConfig struct {
	// MaxRequests is the bucket capacity and the refill amount per Window.
	MaxRequests int
	// Window is the refill period. Tokens accrue continuously, scaled by the
	// elapsed fraction of the window, not in discrete ticks.
	Window time.Duration
	// MaxKeys bounds the number of tracked buckets. Once reached, requests
	// from unseen keys are denied until the sweeper frees slots.
	MaxKeys int
	// CleanupInterval is how often idle buckets are swept. Buckets idle for
	// longer than twice the window are evicted.
	CleanupInterval time.Duration
}

// Config groups every tunable of the runtime. All fields are overridable;
// zero values fall back to the defaults above via WithDefaults. Validate
// rejects out-of-range values before the runtime starts serving.
type Config struct {
	// Host and Port describe where the ingress adapter should bind. The
	// runtime itself never opens sockets; these are handed to the adapter.
	Host string
	Port int

	// Request admission limits. Requests exceeding them are rejected at the
	// boundary and never reach a handler.
	MaxBodyBytes   int
	MaxURLLength   int
	MaxHeaderCount int
	MaxHeaderBytes int

	// MaxResponseBytes caps response bodies. Larger responses are converted
	// to 413 after being built.
	MaxResponseBytes int

	// RequestTimeout is the per-request deadline enforced by the orchestrator.
	RequestTimeout time.Duration
	// IdleTimeout and HeaderTimeout are handed through to the ingress adapter.
	IdleTimeout   time.Duration
	HeaderTimeout time.Duration
	// DrainTimeout bounds the graceful-shutdown drain phase.
	DrainTimeout time.Duration

	RateLimit RateLimitConfig

	// TrustProxy controls whether forwarded-for headers may override the
	// caller address used as the default rate-limit key.
	TrustProxy bool

	// RequestIDHeader names the header carrying the caller-supplied request
	// ID. GenerateRequestID creates a ULID when the header is absent.
	RequestIDHeader   string
	GenerateRequestID bool

	// MetricsEnabled registers the Prometheus collectors on construction.
	MetricsEnabled bool
	// TracingEnabled wires the OpenTelemetry tracer middleware into the
	// default chain.
	TracingEnabled bool
}

// WithDefaults returns a copy of the config with zero values replaced by
// defaults. The receiver is not modified.
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxURLLength == 0 {
		c.MaxURLLength = DefaultMaxURLLength
	}
	if c.MaxHeaderCount == 0 {
		c.MaxHeaderCount = DefaultMaxHeaderCount
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.HeaderTimeout == 0 {
		c.HeaderTimeout = DefaultHeaderTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.RequestIDHeader == "" {
		c.RequestIDHeader = DefaultRequestIDHeader
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = DefaultRateLimitMaxRequests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateLimitWindow
	}
	if c.RateLimit.MaxKeys == 0 {
		c.RateLimit.MaxKeys = DefaultRateLimitMaxKeys
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = DefaultRateLimitCleanupInterval
	}
	return c
}

// Validate checks every field and reports all problems at once so a bad
// deployment fails fast with a complete picture.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in [1, 65535], got %d", c.Port))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max body bytes must not be negative, got %d", c.MaxBodyBytes))
	}
	if c.MaxURLLength < 1 {
		errs = append(errs, fmt.Errorf("max URL length must be positive, got %d", c.MaxURLLength))
	}
	if c.MaxHeaderCount < 1 {
		errs = append(errs, fmt.Errorf("max header count must be positive, got %d", c.MaxHeaderCount))
	}
	if c.MaxHeaderBytes < 1 {
		errs = append(errs, fmt.Errorf("max header bytes must be positive, got %d", c.MaxHeaderBytes))
	}
	if c.MaxResponseBytes < 1 {
		errs = append(errs, fmt.Errorf("max response bytes must be positive, got %d", c.MaxResponseBytes))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout))
	}
	if c.HeaderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("header timeout must be positive, got %s", c.HeaderTimeout))
	}
	if c.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("drain timeout must be positive, got %s", c.DrainTimeout))
	}

	errs = append(errs, c.RateLimit.validate()...)

	return errors.Join(errs...)
}

func (r RateLimitConfig) validate() []error {
	var errs []error
	if r.MaxRequests < 1 {
		errs = append(errs, fmt.Errorf("rate limit max requests must be positive, got %d", r.MaxRequests))
	}
	if r.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate limit window must be positive, got %s", r.Window))
	}
	if r.MaxKeys < 1 {
		errs = append(errs, fmt.Errorf("rate limit max keys must be positive, got %d", r.MaxKeys))
	}
	if r.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("rate limit cleanup interval must be positive, got %s", r.CleanupInterval))
	}
	return errs
}

// RetryAfterSeconds is the value advertised on 429 responses: the window
// rounded up to whole seconds.
func (r RateLimitConfig) RetryAfterSeconds() int {
	secs := int(r.Window / time.Second)
	if r.Window%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
