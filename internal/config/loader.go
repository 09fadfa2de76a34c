package config

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.API.Key = expandEnvVars(cfg.API.Key)
	cfg.Relay.Password = expandEnvVars(cfg.Relay.Password)
}

// applyEnvOverrides lets a handful of environment variables override the
// file-based config, matching the original deployment's dotenv conventions.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.API.Key == "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PARLEY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults backfills zero values the YAML file left unset.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = def.API.BaseURL
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = def.API.TimeoutSeconds
	}
	if len(cfg.Models) == 0 {
		cfg.Models = def.Models
	}
	if cfg.Bots.DefaultModel == "" {
		cfg.Bots.DefaultModel = def.Bots.DefaultModel
	}
	if cfg.Bots.DefaultSystemPrompt == "" {
		cfg.Bots.DefaultSystemPrompt = def.Bots.DefaultSystemPrompt
	}
	if cfg.Bots.DefaultSeedMessage == "" {
		cfg.Bots.DefaultSeedMessage = def.Bots.DefaultSeedMessage
	}
	if cfg.Pricing.CatalogURL == "" {
		cfg.Pricing.CatalogURL = def.Pricing.CatalogURL
	}
	if cfg.Pricing.CacheTTLDays == 0 {
		cfg.Pricing.CacheTTLDays = def.Pricing.CacheTTLDays
	}
	if cfg.Pricing.LocalCurrency == "" {
		cfg.Pricing.LocalCurrency = def.Pricing.LocalCurrency
	}
	if cfg.Pricing.ExchangeRate == 0 {
		cfg.Pricing.ExchangeRate = def.Pricing.ExchangeRate
	}
	if cfg.Pricing.Precision == 0 {
		cfg.Pricing.Precision = def.Pricing.Precision
	}
	if cfg.Engine.TurnDelayMs == 0 {
		cfg.Engine.TurnDelayMs = def.Engine.TurnDelayMs
	}
	if cfg.Engine.MaxTokens == 0 {
		cfg.Engine.MaxTokens = def.Engine.MaxTokens
	}
	if cfg.Relay.Port == 0 {
		cfg.Relay.Port = def.Relay.Port
	}
	if cfg.Relay.Nick == "" {
		cfg.Relay.Nick = def.Relay.Nick
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
