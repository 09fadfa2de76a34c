package gateway

import (
	"errors"
	"net/http"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/engine"
	"github.com/parleybot/parley/internal/export"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /api/conversations/{id}/stats", s.handleConversationStats)
	mux.HandleFunc("GET /api/conversations/{id}/export", s.handleExportConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("conversation.start", s.rpcConversationStart)
	s.Handle("conversation.pause", s.rpcConversationPause)
	s.Handle("conversation.resume", s.rpcConversationResume)
	s.Handle("conversation.updatePrompts", s.rpcUpdatePrompts)
	s.Handle("conversation.status", s.rpcConversationStatus)
}

// HTTP handlers

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.models})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations()
	if err != nil {
		s.log.Error().Err(err).Msg("listing conversations")
		writeError(w, http.StatusInternalServerError, "listing conversations failed")
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(id)
	if err != nil {
		s.log.Error().Err(err).Str("conversationId", id).Msg("loading conversation")
		writeError(w, http.StatusInternalServerError, "loading conversation failed")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	msgs, err := s.store.ListMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading messages failed")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
	})
}

func (s *Server) handleConversationStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stats, err := s.store.AggregateStats(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading stats failed")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = "txt"
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := s.store.GetConversation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading conversation failed")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	msgs, err := s.store.ListMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading messages failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(id)+`"`)
	if err := export.Render(w, format, msgs); err != nil {
		s.log.Error().Err(err).Str("conversationId", id).Msg("export render failed")
	}
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.DeleteConversation(id) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	})
}

type botParams struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	Model        string `json:"model"`
}

type startParams struct {
	BotA        botParams `json:"botA"`
	BotB        botParams `json:"botB"`
	SeedMessage string    `json:"seedMessage"`
	Title       string    `json:"title,omitempty"`
}

// applyBotDefaults backfills omitted bot fields from the configured defaults.
func (s *Server) applyBotDefaults(p botParams, fallbackName string) domain.BotConfig {
	cfg := domain.BotConfig{Name: p.Name, SystemPrompt: p.SystemPrompt, Model: p.Model}
	if cfg.Name == "" {
		cfg.Name = fallbackName
	}
	if cfg.Model == "" {
		cfg.Model = s.cfg.Bots.DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = s.cfg.Bots.DefaultSystemPrompt
	}
	return cfg
}

func (s *Server) rpcConversationStart(rc *RequestContext) {
	var p startParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	botA := s.applyBotDefaults(p.BotA, "Bot A")
	botB := s.applyBotDefaults(p.BotB, "Bot B")
	seed := p.SeedMessage
	if seed == "" {
		seed = s.cfg.Bots.DefaultSeedMessage
	}

	id, err := s.engine.Start(botA, botB, seed, p.Title)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrAlreadyRunning):
			rc.RespondError("already_running", err.Error())
		case errors.Is(err, engine.ErrInvalidBotConfig):
			rc.RespondError("invalid_params", err.Error())
		default:
			rc.RespondError("internal", err.Error())
		}
		return
	}
	rc.Respond(map[string]any{"conversationId": id})
}

func (s *Server) rpcConversationPause(rc *RequestContext) {
	if err := s.engine.Pause(); err != nil {
		rc.RespondError("not_running", err.Error())
		return
	}
	rc.Respond(s.engine.Status())
}

func (s *Server) rpcConversationResume(rc *RequestContext) {
	if err := s.engine.Resume(); err != nil {
		switch {
		case errors.Is(err, engine.ErrAlreadyRunning):
			rc.RespondError("already_running", err.Error())
		case errors.Is(err, engine.ErrNothingToResume):
			rc.RespondError("nothing_to_resume", err.Error())
		default:
			rc.RespondError("internal", err.Error())
		}
		return
	}
	rc.Respond(s.engine.Status())
}

type updatePromptsParams struct {
	PromptA *string `json:"promptA,omitempty"`
	PromptB *string `json:"promptB,omitempty"`
}

func (s *Server) rpcUpdatePrompts(rc *RequestContext) {
	var p updatePromptsParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.PromptA == nil && p.PromptB == nil {
		rc.RespondError("invalid_params", "at least one of promptA, promptB is required")
		return
	}
	if err := s.engine.UpdateSystemPrompts(p.PromptA, p.PromptB); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			rc.RespondError("not_running", err.Error())
			return
		}
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(s.engine.Status())
}

func (s *Server) rpcConversationStatus(rc *RequestContext) {
	rc.Respond(s.engine.Status())
}
