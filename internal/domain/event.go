package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names delivered to observers. Delivery is best-effort; observers not
// connected at emit time receive nothing.
const (
	EventNewMessage        = "new_message"
	EventTokenStatsUpdate  = "token_stats_update"
	EventConversationState = "conversation_state"
	EventError             = "error"
)

// NewMessageEvent is the payload for EventNewMessage.
type NewMessageEvent struct {
	ConversationID   string          `json:"conversationId"`
	Bot              string          `json:"bot"`
	Message          string          `json:"message"`
	Timestamp        time.Time       `json:"timestamp"`
	PromptTokens     uint64          `json:"promptTokens"`
	CompletionTokens uint64          `json:"completionTokens"`
	TotalTokens      uint64          `json:"totalTokens"`
	CostUSD          decimal.Decimal `json:"costUsd"`
	CostLocal        decimal.Decimal `json:"costLocal"`
}

// StateEvent is the payload for EventConversationState.
type StateEvent struct {
	ConversationID string `json:"conversationId"`
	State          string `json:"state"` // "running", "paused", "errored", "completed"
}

// ErrorEvent is the payload for EventError.
type ErrorEvent struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}
