package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parleybot/parley/internal/domain"
)

// ConversationStore owns conversation and message records backed by SQLite.
// Aggregate totals on the conversation row are updated in the same
// transaction as every message insert, so they always equal the sum over the
// conversation's messages.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// CreateConversation persists a new conversation and returns its id.
func (s *ConversationStore) CreateConversation(botA, botB domain.BotConfig, title string) (string, error) {
	id := uuid.New().String()
	createdAt := time.Now()

	_, err := s.db.sql.Exec(
		`INSERT INTO conversations
			(id, title, created_at,
			 bot_a_name, bot_a_system_prompt, bot_a_model,
			 bot_b_name, bot_b_system_prompt, bot_b_model)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, title, createdAt.Format(time.DateTime),
		botA.Name, botA.SystemPrompt, botA.Model,
		botB.Name, botB.SystemPrompt, botB.Model,
	)
	if err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}

	s.db.log.Info().Str("conversationId", id).Str("botA", botA.Name).Str("botB", botB.Name).Msg("conversation created")
	return id, nil
}

// AppendMessage inserts a message and bumps the conversation's aggregate
// totals in a single transaction.
func (s *ConversationStore) AppendMessage(conversationID, speaker, content string, promptTokens, completionTokens uint64, cost decimal.Decimal) (*domain.Message, error) {
	totalTokens := promptTokens + completionTokens
	now := time.Now()

	tx, err := s.db.sql.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO messages
			(conversation_id, timestamp, speaker, content, prompt_tokens, completion_tokens, total_tokens, cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conversationID, now.Format(time.DateTime), speaker, content,
		promptTokens, completionTokens, totalTokens, cost.String(),
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	var currentCost string
	if err := tx.QueryRow(
		`SELECT total_cost FROM conversations WHERE id = ?`, conversationID,
	).Scan(&currentCost); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("reading conversation totals: %w", err)
	}

	total, err := decimal.NewFromString(currentCost)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("parsing stored total cost %q: %w", currentCost, err)
	}

	if _, err := tx.Exec(
		`UPDATE conversations SET total_tokens = total_tokens + ?, total_cost = ? WHERE id = ?`,
		totalTokens, total.Add(cost).String(), conversationID,
	); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating conversation totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	msgID, _ := res.LastInsertId()
	return &domain.Message{
		ID:               msgID,
		ConversationID:   conversationID,
		Timestamp:        now,
		Speaker:          speaker,
		Content:          content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		Cost:             cost,
	}, nil
}

// GetConversation returns a conversation by id, or nil if not found.
func (s *ConversationStore) GetConversation(id string) (*domain.Conversation, error) {
	row := s.db.sql.QueryRow(
		`SELECT id, title, created_at,
			bot_a_name, bot_a_system_prompt, bot_a_model,
			bot_b_name, bot_b_system_prompt, bot_b_model,
			total_tokens, total_cost
		 FROM conversations WHERE id = ?`, id,
	)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// ListConversations returns all conversations, newest first.
func (s *ConversationStore) ListConversations() ([]domain.Conversation, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, title, created_at,
			bot_a_name, bot_a_system_prompt, bot_a_model,
			bot_b_name, bot_b_system_prompt, bot_b_model,
			total_tokens, total_cost
		 FROM conversations ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var createdAt, totalCost string

	err := row.Scan(
		&conv.ID, &conv.Title, &createdAt,
		&conv.BotA.Name, &conv.BotA.SystemPrompt, &conv.BotA.Model,
		&conv.BotB.Name, &conv.BotB.SystemPrompt, &conv.BotB.Model,
		&conv.TotalTokens, &totalCost,
	)
	if err != nil {
		return nil, err
	}

	conv.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	conv.TotalCost, err = decimal.NewFromString(totalCost)
	if err != nil {
		return nil, fmt.Errorf("parsing total cost %q: %w", totalCost, err)
	}
	return &conv, nil
}

// ListMessages returns all messages for a conversation in insertion order.
func (s *ConversationStore) ListMessages(conversationID string) ([]domain.Message, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, conversation_id, timestamp, speaker, content,
			prompt_tokens, completion_tokens, total_tokens, cost
		 FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// LastMessage returns the most recent message in a conversation, or nil when
// the conversation has none.
func (s *ConversationStore) LastMessage(conversationID string) (*domain.Message, error) {
	row := s.db.sql.QueryRow(
		`SELECT id, conversation_id, timestamp, speaker, content,
			prompt_tokens, completion_tokens, total_tokens, cost
		 FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, conversationID,
	)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var ts, cost string

	err := row.Scan(
		&msg.ID, &msg.ConversationID, &ts, &msg.Speaker, &msg.Content,
		&msg.PromptTokens, &msg.CompletionTokens, &msg.TotalTokens, &cost,
	)
	if err != nil {
		return nil, err
	}

	msg.Timestamp, _ = time.Parse(time.DateTime, ts)
	msg.Cost, err = decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("parsing message cost %q: %w", cost, err)
	}
	return &msg, nil
}

// AggregateStats returns the conversation's totals plus a per-speaker
// breakdown, or nil if the conversation does not exist. Cost sums are done in
// decimal space to stay exact.
func (s *ConversationStore) AggregateStats(conversationID string) (*domain.TokenStats, error) {
	conv, err := s.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}

	msgs, err := s.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}

	perSpeaker := make(map[string]domain.SpeakerStats)
	for _, msg := range msgs {
		stats := perSpeaker[msg.Speaker]
		stats.PromptTokens += msg.PromptTokens
		stats.CompletionTokens += msg.CompletionTokens
		stats.TotalTokens += msg.TotalTokens
		stats.Cost = stats.Cost.Add(msg.Cost)
		perSpeaker[msg.Speaker] = stats
	}

	return &domain.TokenStats{
		ConversationID: conversationID,
		TotalTokens:    conv.TotalTokens,
		TotalCost:      conv.TotalCost,
		PerSpeaker:     perSpeaker,
	}, nil
}

// UpdateSystemPrompts replaces one or both stored system prompts. Nil fields
// are left unchanged.
func (s *ConversationStore) UpdateSystemPrompts(conversationID string, promptA, promptB *string) error {
	if promptA == nil && promptB == nil {
		return nil
	}

	query := `UPDATE conversations SET `
	var args []any
	if promptA != nil {
		query += `bot_a_system_prompt = ?`
		args = append(args, *promptA)
	}
	if promptB != nil {
		if promptA != nil {
			query += `, `
		}
		query += `bot_b_system_prompt = ?`
		args = append(args, *promptB)
	}
	query += ` WHERE id = ?`
	args = append(args, conversationID)

	if _, err := s.db.sql.Exec(query, args...); err != nil {
		return fmt.Errorf("updating system prompts: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and all its messages in one
// transaction. Returns false when nothing was deleted or the transaction
// failed; a failure leaves the conversation and its messages intact.
func (s *ConversationStore) DeleteConversation(conversationID string) bool {
	tx, err := s.db.sql.Begin()
	if err != nil {
		s.db.log.Error().Err(err).Msg("delete: begin failed")
		return false
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		tx.Rollback()
		s.db.log.Error().Err(err).Str("conversationId", conversationID).Msg("delete: removing messages failed")
		return false
	}

	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		tx.Rollback()
		s.db.log.Error().Err(err).Str("conversationId", conversationID).Msg("delete: removing conversation failed")
		return false
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		tx.Rollback()
		return false
	}

	if err := tx.Commit(); err != nil {
		s.db.log.Error().Err(err).Str("conversationId", conversationID).Msg("delete: commit failed")
		return false
	}

	s.db.log.Info().Str("conversationId", conversationID).Msg("conversation deleted")
	return true
}
