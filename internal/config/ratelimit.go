package config

import "time"

// RateLimitConfig holds the per-endpoint request rate policies.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"ENABLED" json:"enabled"`

	// Notify throttles the internal create+notify ingress.
	Notify RatePolicyConfig `mapstructure:"NOTIFY" json:"notify" validate:"required"`

	// Stream throttles stream connection establishment.
	Stream RatePolicyConfig `mapstructure:"STREAM" json:"stream" validate:"required"`
}

// RatePolicyConfig is one fixed-window policy bucket.
type RatePolicyConfig struct {
	Prefix string        `mapstructure:"PREFIX" json:"prefix" validate:"required,alphanum"`
	Window time.Duration `mapstructure:"WINDOW" json:"window" validate:"required,reasonable_duration"`
	Max    int           `mapstructure:"MAX"    json:"max"    validate:"required,min=1"`
}
