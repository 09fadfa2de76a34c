// Package config loads and validates the parley YAML configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 5000,
			Bind: "127.0.0.1",
		},
		API: APIConfig{
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 120,
		},
		Models: []string{"gpt-4o", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
		Bots: BotsConfig{
			DefaultModel:        "gpt-3.5-turbo",
			DefaultSystemPrompt: "You are a helpful AI assistant.",
			DefaultSeedMessage:  "Hello! Let's have a conversation.",
		},
		Pricing: PricingConfig{
			CatalogURL:    "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json",
			CacheTTLDays:  5,
			LocalCurrency: "TWD",
			ExchangeRate:  31.5,
			Precision:     10,
		},
		Engine: EngineConfig{
			TurnDelayMs: 1000,
			MaxTokens:   1000,
		},
		Relay: RelayConfig{
			Port: 6667,
			Nick: "parley",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
