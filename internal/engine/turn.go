package engine

import (
	"context"
	"strings"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/llm"
)

// turnState is the in-memory state of one engine run. It is owned entirely by
// the loop goroutine and dies with it; a paused conversation is reconstructed
// from the persisted last message plus the stored bot configs.
type turnState struct {
	conversationID string
	// current is the side whose message is waiting to be answered.
	current     domain.BotRef
	lastMessage string
	histories   map[domain.BotRef][]llm.Message
}

func newTurnState(conversationID, seedMessage string) *turnState {
	return &turnState{
		conversationID: conversationID,
		current:        domain.BotA,
		lastMessage:    seedMessage,
		histories: map[domain.BotRef][]llm.Message{
			domain.BotA: nil,
			domain.BotB: nil,
		},
	}
}

// outgoing assembles the message list for the responding bot. A bot's history
// is seeded on its first turn: with a system turn when the model supports the
// role, otherwise by folding the system prompt into the first user turn.
func (ts *turnState) outgoing(ref domain.BotRef, cfg domain.BotConfig, input string) ([]llm.Message, llm.Message) {
	v := llm.VariantFor(cfg.Model)
	hist := ts.histories[ref]

	content := input
	if len(hist) == 0 {
		if v.SupportsSystemRole {
			hist = append(hist, llm.Message{Role: llm.RoleSystem, Content: cfg.SystemPrompt})
			ts.histories[ref] = hist
		} else {
			content = cfg.SystemPrompt + "\n\nUser message: " + input
		}
	}

	userTurn := llm.Message{Role: llm.RoleUser, Content: content}
	msgs := make([]llm.Message, 0, len(hist)+1)
	msgs = append(msgs, hist...)
	msgs = append(msgs, userTurn)
	return msgs, userTurn
}

// record appends the exchanged pair to the responding bot's history and
// advances the turn.
func (ts *turnState) record(ref domain.BotRef, userTurn llm.Message, reply string) {
	ts.histories[ref] = append(ts.histories[ref],
		userTurn,
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	ts.current = ref
	ts.lastMessage = reply
}

// completeTurn normalizes streamed and bulk model variants into a single
// reply plus final usage. An empty streamed reply falls back to one
// non-streaming request before being treated as a failure upstream.
func (e *Engine) completeTurn(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	v := llm.VariantFor(req.Model)
	if v.Delivery != llm.DeliveryStreamed {
		return e.client.Complete(ctx, req)
	}

	resp, err := e.streamOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		e.log.Warn().Str("model", req.Model).Msg("empty streamed reply, retrying without streaming")
		return e.client.Complete(ctx, req)
	}
	return resp, nil
}

// streamOnce drains one streaming completion into a full response.
func (e *Engine) streamOnce(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ch, err := e.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	var final *llm.CompletionResponse

	for evt := range ch {
		switch evt.Type {
		case "delta":
			content.WriteString(evt.Content)
		case "done":
			if evt.Response != nil {
				final = evt.Response
			}
		case "error":
			return nil, &llm.ProviderError{Provider: e.client.Name(), Message: evt.Error}
		}
	}

	if final == nil {
		final = &llm.CompletionResponse{Model: req.Model}
	}
	if final.Content == "" {
		final.Content = content.String()
	}
	return final, nil
}
