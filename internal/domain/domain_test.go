package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBotRefOther(t *testing.T) {
	assert.Equal(t, BotB, BotA.Other())
	assert.Equal(t, BotA, BotB.Other())
}

func TestConversationBot(t *testing.T) {
	c := Conversation{
		BotA: BotConfig{Name: "Ava", Model: "gpt-4o"},
		BotB: BotConfig{Name: "Bo", Model: "gpt-3.5-turbo"},
	}
	assert.Equal(t, "Ava", c.Bot(BotA).Name)
	assert.Equal(t, "Bo", c.Bot(BotB).Name)
}

func TestConversationSpeakerRef(t *testing.T) {
	c := Conversation{
		BotA: BotConfig{Name: "Ava"},
		BotB: BotConfig{Name: "Bo"},
	}
	assert.Equal(t, BotA, c.SpeakerRef("Ava"))
	assert.Equal(t, BotB, c.SpeakerRef("Bo"))
	assert.Equal(t, BotA, c.SpeakerRef("stranger"))
}

func TestMessageIsSeed(t *testing.T) {
	seed := Message{Content: "Hi"}
	assert.True(t, seed.IsSeed())

	generated := Message{Content: "Hello!", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Cost: decimal.NewFromFloat(0.001)}
	assert.False(t, generated.IsSeed())
}
