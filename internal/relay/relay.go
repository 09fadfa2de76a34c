// Package relay mirrors conversation events into an IRC channel so spectators
// can follow a run from a plain IRC client. It is outbound only.
package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

// Relay is an engine.EventSink that posts events to a single IRC channel.
// Events arriving while disconnected are dropped; delivery is best-effort.
type Relay struct {
	cfg    config.RelayConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	running bool
	lastErr string
}

// New creates a relay from configuration.
func New(cfg config.RelayConfig, log *logging.Logger) *Relay {
	return &Relay{
		cfg: cfg,
		log: log.Sub("relay"),
	}
}

// Status reports the relay's runtime state.
type Status struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

func (r *Relay) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Connected: r.client != nil && r.client.IsConnected(),
		Running:   r.running,
		LastError: r.lastErr,
	}
}

// Start connects to the IRC server and joins the configured channel. It
// blocks until the context is cancelled or the connection fails.
func (r *Relay) Start(ctx context.Context) error {
	port := r.cfg.Port
	if port == 0 {
		if r.cfg.TLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  r.cfg.Server,
		Port:    port,
		Nick:    r.cfg.Nick,
		User:    r.cfg.Nick,
		Name:    "parley conversation relay",
		SSL:     r.cfg.TLS,
		Version: "parley/1.0",
	}
	if r.cfg.TLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: r.cfg.Server}
	}
	if r.cfg.Password != "" {
		gircCfg.ServerPass = r.cfg.Password
	}

	r.mu.Lock()
	r.client = girc.New(gircCfg)
	r.client.Handlers.Add(girc.CONNECTED, r.onConnected)
	r.client.Handlers.Add(girc.DISCONNECTED, r.onDisconnected)
	r.running = true
	r.lastErr = ""
	client := r.client
	r.mu.Unlock()

	r.log.Info().
		Str("server", r.cfg.Server).
		Int("port", port).
		Str("nick", r.cfg.Nick).
		Str("channel", r.cfg.Channel).
		Bool("tls", r.cfg.TLS).
		Msg("connecting to IRC")

	// Connect() blocks; run it aside so the context can interrupt.
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		r.mu.Lock()
		r.running = false
		if err != nil {
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return ctx.Err()
	}
}

// Stop disconnects from the IRC server.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil && r.client.IsConnected() {
		r.log.Info().Msg("disconnecting from IRC")
		r.client.Quit("parley shutting down")
	}
	r.running = false
}

func (r *Relay) onConnected(_ *girc.Client, e girc.Event) {
	r.log.Info().Str("channel", r.cfg.Channel).Msg("connected to IRC, joining channel")
	r.client.Cmd.Join(r.cfg.Channel)
}

func (r *Relay) onDisconnected(_ *girc.Client, e girc.Event) {
	r.log.Warn().Msg("disconnected from IRC")
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Emit implements engine.EventSink. Token stats are deliberately not relayed;
// per-turn totals would drown the actual conversation.
func (r *Relay) Emit(event string, payload any) {
	lines := formatEvent(event, payload)
	if len(lines) == 0 {
		return
	}

	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}

	for _, line := range lines {
		client.Cmd.Message(r.cfg.Channel, line)
	}
}

// formatEvent renders an engine event into IRC lines.
func formatEvent(event string, payload any) []string {
	switch event {
	case domain.EventNewMessage:
		msg, ok := payload.(domain.NewMessageEvent)
		if !ok {
			return nil
		}
		return splitMessage(fmt.Sprintf("<%s> %s", msg.Bot, msg.Message), 400)

	case domain.EventConversationState:
		st, ok := payload.(domain.StateEvent)
		if !ok {
			return nil
		}
		return []string{fmt.Sprintf("* conversation %s is now %s", st.ConversationID, st.State)}

	case domain.EventError:
		ev, ok := payload.(domain.ErrorEvent)
		if !ok {
			return nil
		}
		return splitMessage("* error: "+ev.Message, 400)

	default:
		return nil
	}
}

// splitMessage breaks a long message into chunks suitable for IRC.
// Each newline in the input produces a separate chunk because IRC
// PRIVMSG does not support embedded newlines. Lines longer than
// maxLen are further split at the byte boundary.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			chunks = append(chunks, line)
		}
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
