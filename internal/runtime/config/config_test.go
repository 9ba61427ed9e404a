package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{}.WithDefaults()
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := validConfig()

	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("expected default request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.RequestIDHeader != DefaultRequestIDHeader {
		t.Errorf("expected default request id header, got %q", cfg.RequestIDHeader)
	}
	if cfg.RateLimit.MaxKeys != DefaultRateLimitMaxKeys {
		t.Errorf("expected default max keys, got %d", cfg.RateLimit.MaxKeys)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaulted config must validate, got %v", err)
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Port: 9999, RequestTimeout: time.Second}.WithDefaults()

	if cfg.Port != 9999 {
		t.Errorf("explicit port overridden: %d", cfg.Port)
	}
	if cfg.RequestTimeout != time.Second {
		t.Errorf("explicit timeout overridden: %s", cfg.RequestTimeout)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"port too low", func(c *Config) { c.Port = -1 }, "port"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port"},
		{"negative body limit", func(c *Config) { c.MaxBodyBytes = -5 }, "body bytes"},
		{"zero url length", func(c *Config) { c.MaxURLLength = -1 }, "URL length"},
		{"zero header count", func(c *Config) { c.MaxHeaderCount = -1 }, "header count"},
		{"zero header bytes", func(c *Config) { c.MaxHeaderBytes = -1 }, "header bytes"},
		{"zero response bytes", func(c *Config) { c.MaxResponseBytes = -1 }, "response bytes"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request timeout"},
		{"zero drain timeout", func(c *Config) { c.DrainTimeout = -time.Second }, "drain timeout"},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxRequests = -1 }, "rate limit max requests"},
		{"zero rate window", func(c *Config) { c.RateLimit.Window = -time.Second }, "rate limit window"},
		{"zero max keys", func(c *Config) { c.RateLimit.MaxKeys = -1 }, "rate limit max keys"},
		{"zero cleanup", func(c *Config) { c.RateLimit.CleanupInterval = -time.Second }, "cleanup interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	cfg.RequestTimeout = -1
	cfg.RateLimit.MaxRequests = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"port", "request timeout", "rate limit max requests"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   int
	}{
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
		{200 * time.Millisecond, 1},
	}

	for _, tt := range tests {
		got := RateLimitConfig{Window: tt.window}.RetryAfterSeconds()
		if got != tt.want {
			t.Errorf("RetryAfterSeconds(%s) = %d, want %d", tt.window, got, tt.want)
		}
	}
}
