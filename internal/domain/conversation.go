package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Conversation is the persisted record of a two-bot exchange.
// TotalTokens and TotalCost are maintained transactionally by the store on
// every message insert, so they always equal the sum over the conversation's
// messages.
type Conversation struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	BotA        BotConfig       `json:"botA"`
	BotB        BotConfig       `json:"botB"`
	TotalTokens uint64          `json:"totalTokens"`
	TotalCost   decimal.Decimal `json:"totalCost"`
}

// Bot returns the config for the given side.
func (c *Conversation) Bot(ref BotRef) BotConfig {
	if ref == BotA {
		return c.BotA
	}
	return c.BotB
}

// SpeakerRef maps a bot name back to its side. Falls back to BotA when the
// name matches neither side (historic rows after a rename).
func (c *Conversation) SpeakerRef(name string) BotRef {
	if name == c.BotB.Name {
		return BotB
	}
	return BotA
}

// SpeakerStats is the per-bot slice of a conversation's token accounting.
type SpeakerStats struct {
	PromptTokens     uint64          `json:"promptTokens"`
	CompletionTokens uint64          `json:"completionTokens"`
	TotalTokens      uint64          `json:"totalTokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// TokenStats is the aggregate snapshot emitted after every persisted turn.
type TokenStats struct {
	ConversationID string                  `json:"conversationId"`
	TotalTokens    uint64                  `json:"totalTokens"`
	TotalCost      decimal.Decimal         `json:"totalCost"`
	PerSpeaker     map[string]SpeakerStats `json:"perSpeaker"`
}
