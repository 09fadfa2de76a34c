package config

import "fmt"

// Validate checks the config for values that would break the server at
// runtime. Called once at startup; request-time bot validation lives in the
// engine.
func Validate(cfg Config) error {
	if cfg.Gateway.Port < 1 || cfg.Gateway.Port > 65535 {
		return &ConfigError{Message: fmt.Sprintf("gateway port %d out of range", cfg.Gateway.Port)}
	}
	if cfg.Pricing.ExchangeRate <= 0 {
		return &ConfigError{Message: "pricing exchange rate must be positive"}
	}
	if cfg.Pricing.Precision < 0 || cfg.Pricing.Precision > 28 {
		return &ConfigError{Message: fmt.Sprintf("pricing precision %d out of range", cfg.Pricing.Precision)}
	}
	if cfg.Engine.TurnDelayMs < 0 {
		return &ConfigError{Message: "engine turn delay must not be negative"}
	}
	if cfg.Relay.Enabled {
		if cfg.Relay.Server == "" {
			return &ConfigError{Message: "relay enabled but no server configured"}
		}
		if cfg.Relay.Channel == "" {
			return &ConfigError{Message: "relay enabled but no channel configured"}
		}
	}
	return nil
}
