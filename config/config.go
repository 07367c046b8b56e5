// Package config loads the handful of operator knobs the resolver core
// exposes: the message cache size, the in-flight query cap, IPv6 root-hint
// use, and the log level (spec.md §6). It has no timeout settings. File
// format and flag parsing are a front-end concern and out of scope; this
// is the ambient on-ramp a front-end would call before constructing the
// core's collaborators.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds the core's operator-facing settings.
type Config struct {
	// MessageCacheSize is the number of envelope entries the message
	// cache holds (spec.md §6 "Cache sizing"). The RRset cache is sized
	// at 2x this automatically.
	MessageCacheSize uint `koanf:"message_cache_size" validate:"required,gte=1"`

	// MaxInFlightQueries is the operator setting for the aggregate
	// client's cap on distinct outstanding (name,type) keys (spec.md
	// §4.6). AggregateClient does not take this value: its cap is the
	// fixed maxInFlightKeys constant (1000).
	MaxInFlightQueries uint `koanf:"max_inflight_queries" validate:"required,gte=1"`

	// UseIPv6 includes IPv6 root-hint and glue addresses when set.
	UseIPv6 bool `koanf:"use_ipv6"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// RRSetCacheSize is the RRset cache capacity derived from the message
// cache size, per spec.md §4.1 "typically 2x the message cache capacity".
func (c Config) RRSetCacheSize() uint {
	return c.MessageCacheSize * 2
}

var envLoader = func(k *koanf.Koanf, prefix string) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, prefix)), value
		},
	}), nil)
}

// Load parses environment variables prefixed RESOLVER_ into a Config,
// applying defaults and validating the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Config{
		MessageCacheSize:   10000,
		MaxInFlightQueries: 1000,
		UseIPv6:            false,
		LogLevel:           "info",
	}, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if err := envLoader(k, "RESOLVER_"); err != nil {
		return nil, fmt.Errorf("config: loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
