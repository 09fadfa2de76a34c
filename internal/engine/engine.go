// Package engine implements the two-bot conversation state machine: it
// alternates turns between two configured bots, prices and persists every
// reply, and exposes pause/resume/cancel over a single background loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/llm"
	"github.com/parleybot/parley/internal/logging"
	"github.com/parleybot/parley/internal/pricing"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateErrored   State = "errored"
	StateCompleted State = "completed"
)

var (
	// ErrAlreadyRunning is returned by Start while a conversation is running.
	ErrAlreadyRunning = errors.New("a conversation is already running")
	// ErrNotRunning is returned by control operations that need a running loop.
	ErrNotRunning = errors.New("no conversation is running")
	// ErrNothingToResume is returned by Resume when there is nothing paused.
	ErrNothingToResume = errors.New("no conversation to resume")
	// ErrInvalidBotConfig rejects malformed bot configs at Start.
	ErrInvalidBotConfig = errors.New("invalid bot config")
)

// Store is the persistence capability the engine needs. Implemented by
// store.ConversationStore.
type Store interface {
	CreateConversation(botA, botB domain.BotConfig, title string) (string, error)
	AppendMessage(conversationID, speaker, content string, promptTokens, completionTokens uint64, cost decimal.Decimal) (*domain.Message, error)
	GetConversation(id string) (*domain.Conversation, error)
	LastMessage(conversationID string) (*domain.Message, error)
	AggregateStats(conversationID string) (*domain.TokenStats, error)
	UpdateSystemPrompts(conversationID string, promptA, promptB *string) error
}

// Config tunes the turn loop.
type Config struct {
	TurnDelay   time.Duration
	MaxTokens   int
	Temperature *float64
	MaxTurns    int // 0 means unbounded
}

// Engine runs at most one conversation at a time. Control operations are safe
// to call concurrently from request handlers; the loop itself is strictly
// sequential because each turn's input is the previous turn's output.
type Engine struct {
	client llm.Client
	store  Store
	calc   *pricing.Calculator
	sink   EventSink
	cfg    Config
	log    *logging.Logger

	pauseRequested atomic.Bool

	mu             sync.Mutex
	state          State
	conversationID string
	bots           map[domain.BotRef]domain.BotConfig
	cancel         context.CancelFunc
	loopDone       chan struct{}
}

// New creates an idle engine.
func New(client llm.Client, store Store, calc *pricing.Calculator, sink EventSink, cfg Config, log *logging.Logger) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.TurnDelay <= 0 {
		cfg.TurnDelay = time.Second
	}
	return &Engine{
		client: client,
		store:  store,
		calc:   calc,
		sink:   sink,
		cfg:    cfg,
		log:    log.Sub("engine"),
		state:  StateIdle,
		bots:   make(map[domain.BotRef]domain.BotConfig),
	}
}

// Status is a snapshot of the engine's externally visible state.
type Status struct {
	State          State  `json:"state"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Status returns the current state snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, ConversationID: e.conversationID}
}

func validateBot(label string, cfg domain.BotConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: %s name required", ErrInvalidBotConfig, label)
	}
	if cfg.Model == "" {
		return fmt.Errorf("%w: %s model required", ErrInvalidBotConfig, label)
	}
	if cfg.SystemPrompt == "" {
		return fmt.Errorf("%w: %s system prompt required", ErrInvalidBotConfig, label)
	}
	return nil
}

// Start creates a conversation, persists the seed message as bot A's
// zero-token message, and launches the turn loop in the background. It is
// rejected while another conversation is running.
func (e *Engine) Start(botA, botB domain.BotConfig, seedMessage, title string) (string, error) {
	if err := validateBot("bot A", botA); err != nil {
		return "", err
	}
	if err := validateBot("bot B", botB); err != nil {
		return "", err
	}
	if seedMessage == "" {
		return "", fmt.Errorf("%w: seed message required", ErrInvalidBotConfig)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		return "", ErrAlreadyRunning
	}
	// Abandon any paused run before starting fresh.
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	id, err := e.store.CreateConversation(botA, botB, title)
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}

	seed, err := e.store.AppendMessage(id, botA.Name, seedMessage, 0, 0, decimal.Zero)
	if err != nil {
		return "", fmt.Errorf("persisting seed message: %w", err)
	}

	e.conversationID = id
	e.bots[domain.BotA] = botA
	e.bots[domain.BotB] = botB
	e.pauseRequested.Store(false)

	e.sink.Emit(domain.EventNewMessage, domain.NewMessageEvent{
		ConversationID: id,
		Bot:            botA.Name,
		Message:        seedMessage,
		Timestamp:      seed.Timestamp,
		CostUSD:        decimal.Zero,
		CostLocal:      decimal.Zero,
	})

	e.launchLoop(newTurnState(id, seedMessage))

	e.log.Info().Str("conversationId", id).Str("botA", botA.Name).Str("botB", botB.Name).Msg("conversation started")
	return id, nil
}

// launchLoop transitions to Running and starts the loop goroutine.
// Caller must hold e.mu.
func (e *Engine) launchLoop(ts *turnState) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.setStateLocked(StateRunning)

	done := e.loopDone
	go func() {
		defer close(done)
		e.runLoop(ctx, ts)
	}()
}

// Pause requests the loop to stop after the in-flight turn, if any. The flag
// is observed once per turn boundary; there is no hard interrupt of a model
// call in progress.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return ErrNotRunning
	}
	e.pauseRequested.Store(true)
	e.log.Info().Str("conversationId", e.conversationID).Msg("pause requested")
	return nil
}

// Resume continues a paused conversation. If the pause flag was never
// observed the running loop simply keeps going; otherwise the turn state is
// reconstructed from the persisted last message and the stored bot configs,
// and the loop restarts with the other bot answering that message.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning:
		if e.pauseRequested.CompareAndSwap(true, false) {
			e.log.Info().Str("conversationId", e.conversationID).Msg("pending pause cancelled")
			return nil
		}
		return ErrAlreadyRunning

	case StatePaused:
		conv, err := e.store.GetConversation(e.conversationID)
		if err != nil {
			return fmt.Errorf("loading conversation: %w", err)
		}
		if conv == nil {
			return ErrNothingToResume
		}
		last, err := e.store.LastMessage(e.conversationID)
		if err != nil {
			return fmt.Errorf("loading last message: %w", err)
		}
		if last == nil {
			return ErrNothingToResume
		}

		// Stored configs win: prompts updated while paused take effect here.
		e.bots[domain.BotA] = conv.BotA
		e.bots[domain.BotB] = conv.BotB

		ts := newTurnState(e.conversationID, last.Content)
		ts.current = conv.SpeakerRef(last.Speaker)

		e.pauseRequested.Store(false)
		e.launchLoop(ts)
		e.log.Info().Str("conversationId", e.conversationID).Str("lastSpeaker", last.Speaker).Msg("conversation resumed")
		return nil

	default:
		return ErrNothingToResume
	}
}

// UpdateSystemPrompts replaces one or both system prompts, persisting them
// and updating the configs used for turns not yet executed. History already
// built for the current run is not rewritten; a bot that has spoken keeps
// its old prompt until the run is reconstructed. Only valid while running.
func (e *Engine) UpdateSystemPrompts(promptA, promptB *string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return ErrNotRunning
	}
	if err := e.store.UpdateSystemPrompts(e.conversationID, promptA, promptB); err != nil {
		return err
	}
	if promptA != nil {
		bot := e.bots[domain.BotA]
		bot.SystemPrompt = *promptA
		e.bots[domain.BotA] = bot
	}
	if promptB != nil {
		bot := e.bots[domain.BotB]
		bot.SystemPrompt = *promptB
		e.bots[domain.BotB] = bot
	}
	e.log.Info().Str("conversationId", e.conversationID).Msg("system prompts updated")
	return nil
}

// Stop cancels the running or paused conversation and waits for the loop to
// exit. The conversation stays persisted and can be resumed only by a fresh
// engine run.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.loopDone
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// setStateLocked updates the state and announces the transition.
// Caller must hold e.mu.
func (e *Engine) setStateLocked(s State) {
	e.state = s
	e.sink.Emit(domain.EventConversationState, domain.StateEvent{
		ConversationID: e.conversationID,
		State:          string(s),
	})
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStateLocked(s)
}

func (e *Engine) botConfig(ref domain.BotRef) domain.BotConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bots[ref]
}

// runLoop executes turns until paused, cancelled, errored, or the turn limit
// is reached. The limiter spaces turns out to respect provider rate limits.
func (e *Engine) runLoop(ctx context.Context, ts *turnState) {
	limiter := rate.NewLimiter(rate.Every(e.cfg.TurnDelay), 1)
	turns := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			e.setState(StateCompleted)
			return
		}
		if e.pauseRequested.CompareAndSwap(true, false) {
			e.setState(StatePaused)
			e.log.Info().Str("conversationId", ts.conversationID).Msg("conversation paused")
			return
		}

		if err := e.executeTurn(ctx, ts); err != nil {
			if ctx.Err() != nil {
				e.setState(StateCompleted)
				return
			}
			e.log.Error().Err(err).Str("conversationId", ts.conversationID).Msg("turn failed")
			e.sink.Emit(domain.EventError, domain.ErrorEvent{
				ConversationID: ts.conversationID,
				Message:        err.Error(),
			})
			e.setState(StateErrored)
			return
		}

		turns++
		if e.cfg.MaxTurns > 0 && turns >= e.cfg.MaxTurns {
			e.log.Info().Int("turns", turns).Msg("turn limit reached")
			e.setState(StateCompleted)
			return
		}
	}
}

// executeTurn runs one model call for the bot answering ts.lastMessage and
// persists plus announces the result.
func (e *Engine) executeTurn(ctx context.Context, ts *turnState) error {
	responder := ts.current.Other()
	cfg := e.botConfig(responder)

	outgoing, userTurn := ts.outgoing(responder, cfg, ts.lastMessage)

	resp, err := e.completeTurn(ctx, llm.CompletionRequest{
		Model:       cfg.Model,
		Messages:    outgoing,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return fmt.Errorf("completion for %s: %w", cfg.Name, err)
	}

	cost := e.calc.Compute(cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	msg, err := e.store.AppendMessage(ts.conversationID, cfg.Name, resp.Content,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost.Local)
	if err != nil {
		return fmt.Errorf("persisting reply: %w", err)
	}

	ts.record(responder, userTurn, resp.Content)

	e.sink.Emit(domain.EventNewMessage, domain.NewMessageEvent{
		ConversationID:   ts.conversationID,
		Bot:              cfg.Name,
		Message:          resp.Content,
		Timestamp:        msg.Timestamp,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		CostUSD:          cost.USD,
		CostLocal:        cost.Local,
	})

	if stats, err := e.store.AggregateStats(ts.conversationID); err == nil && stats != nil {
		e.sink.Emit(domain.EventTokenStatsUpdate, *stats)
	}

	e.log.Info().
		Str("conversationId", ts.conversationID).
		Str("bot", cfg.Name).
		Str("model", cfg.Model).
		Uint64("promptTokens", resp.Usage.PromptTokens).
		Uint64("completionTokens", resp.Usage.CompletionTokens).
		Msg("turn completed")
	return nil
}
