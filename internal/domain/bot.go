// Package domain holds the core types shared across the engine, store, and
// gateway: bot configurations, conversations, messages, and event payloads.
package domain

// BotRef identifies which side of the conversation a message belongs to.
type BotRef string

const (
	BotA BotRef = "a"
	BotB BotRef = "b"
)

// Other returns the opposite side.
func (r BotRef) Other() BotRef {
	if r == BotA {
		return BotB
	}
	return BotA
}

// BotConfig defines one side of a two-bot conversation.
// The config is fixed for the lifetime of a conversation, except for
// SystemPrompt which may be replaced mid-run via the engine.
type BotConfig struct {
	Name         string `json:"name" yaml:"name"`
	SystemPrompt string `json:"systemPrompt" yaml:"systemPrompt"`
	Model        string `json:"model" yaml:"model"`
}
