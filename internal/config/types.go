package config

// Config is the root configuration for parley.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
	Models  []string      `yaml:"models,omitempty"`
	Bots    BotsConfig    `yaml:"bots,omitempty"`
	Pricing PricingConfig `yaml:"pricing,omitempty"`
	Engine  EngineConfig  `yaml:"engine,omitempty"`
	Relay   RelayConfig   `yaml:"relay,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port int    `yaml:"port,omitempty"`
	Bind string `yaml:"bind,omitempty"`
}

// APIConfig configures the chat-completion provider.
type APIConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	Key            string `yaml:"key,omitempty"` // supports ${ENV_VAR} references
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// BotsConfig holds defaults applied when a start request omits fields.
type BotsConfig struct {
	DefaultModel        string `yaml:"defaultModel,omitempty"`
	DefaultSystemPrompt string `yaml:"defaultSystemPrompt,omitempty"`
	DefaultSeedMessage  string `yaml:"defaultSeedMessage,omitempty"`
}

// PricingConfig controls the price catalog and cost conversion.
type PricingConfig struct {
	CatalogURL    string  `yaml:"catalogUrl,omitempty"`
	CacheTTLDays  int     `yaml:"cacheTtlDays,omitempty"`
	LocalCurrency string  `yaml:"localCurrency,omitempty"`
	ExchangeRate  float64 `yaml:"exchangeRate,omitempty"`
	Precision     int32   `yaml:"precision,omitempty"`
}

// EngineConfig controls turn-loop pacing and completion limits.
type EngineConfig struct {
	TurnDelayMs int      `yaml:"turnDelayMs,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTurns    int      `yaml:"maxTurns,omitempty"` // 0 means unbounded
}

// RelayConfig configures the optional IRC observer relay.
type RelayConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Server   string `yaml:"server,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	TLS      bool   `yaml:"tls,omitempty"`
	Nick     string `yaml:"nick,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	Password string `yaml:"password,omitempty"` // supports ${ENV_VAR} references
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}
