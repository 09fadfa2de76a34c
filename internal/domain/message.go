package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message is one persisted entry in a conversation, ordered by insertion.
// A message with all-zero token fields is a seed message supplied by the
// caller rather than produced by a model call.
type Message struct {
	ID               int64           `json:"id"`
	ConversationID   string          `json:"conversationId"`
	Timestamp        time.Time       `json:"timestamp"`
	Speaker          string          `json:"speaker"`
	Content          string          `json:"content"`
	PromptTokens     uint64          `json:"promptTokens"`
	CompletionTokens uint64          `json:"completionTokens"`
	TotalTokens      uint64          `json:"totalTokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// IsSeed reports whether this message was supplied by the caller rather than
// generated by a model.
func (m *Message) IsSeed() bool {
	return m.TotalTokens == 0
}

// ChatTurn is a single role/content pair in a bot's in-memory history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
