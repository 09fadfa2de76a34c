package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testBots() (domain.BotConfig, domain.BotConfig) {
	return domain.BotConfig{Name: "Ava", SystemPrompt: "You are Ava.", Model: "gpt-4o"},
		domain.BotConfig{Name: "Bo", SystemPrompt: "You are Bo.", Model: "gpt-3.5-turbo"}
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"conversations", "messages"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Conversation store tests ---

func TestCreateAndGetConversation(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()

	id, err := cs.CreateConversation(botA, botB, "first contact")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := cs.GetConversation(id)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "first contact", conv.Title)
	assert.Equal(t, "Ava", conv.BotA.Name)
	assert.Equal(t, "gpt-3.5-turbo", conv.BotB.Model)
	assert.Equal(t, uint64(0), conv.TotalTokens)
	assert.True(t, conv.TotalCost.IsZero())
}

func TestGetConversation_NotFound(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	conv, err := cs.GetConversation("nope")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestAppendMessage_UpdatesTotals(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()
	id, err := cs.CreateConversation(botA, botB, "")
	require.NoError(t, err)

	_, err = cs.AppendMessage(id, "Ava", "Hi", 0, 0, decimal.Zero)
	require.NoError(t, err)
	_, err = cs.AppendMessage(id, "Bo", "Hello!", 10, 5, decimal.RequireFromString("0.00039375"))
	require.NoError(t, err)
	_, err = cs.AppendMessage(id, "Ava", "How are you?", 20, 7, decimal.RequireFromString("0.0007"))
	require.NoError(t, err)

	conv, err := cs.GetConversation(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), conv.TotalTokens)
	assert.True(t, conv.TotalCost.Equal(decimal.RequireFromString("0.00109375")), "got %s", conv.TotalCost)

	// Invariant: conversation totals equal the sum over messages
	msgs, err := cs.ListMessages(id)
	require.NoError(t, err)
	var sumTokens uint64
	sumCost := decimal.Zero
	for _, m := range msgs {
		sumTokens += m.TotalTokens
		sumCost = sumCost.Add(m.Cost)
	}
	assert.Equal(t, conv.TotalTokens, sumTokens)
	assert.True(t, conv.TotalCost.Equal(sumCost))
}

func TestListMessages_Order(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")

	for i, content := range []string{"one", "two", "three"} {
		_, err := cs.AppendMessage(id, "Ava", content, uint64(i), 0, decimal.Zero)
		require.NoError(t, err)
	}

	msgs, err := cs.ListMessages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestLastMessage(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")

	last, err := cs.LastMessage(id)
	require.NoError(t, err)
	assert.Nil(t, last)

	cs.AppendMessage(id, "Ava", "Hi", 0, 0, decimal.Zero)
	cs.AppendMessage(id, "Bo", "Hello!", 10, 5, decimal.Zero)

	last, err = cs.LastMessage(id)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "Bo", last.Speaker)
	assert.Equal(t, "Hello!", last.Content)
}

func TestAggregateStats(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")

	cs.AppendMessage(id, "Ava", "Hi", 0, 0, decimal.Zero)
	cs.AppendMessage(id, "Bo", "Hello!", 10, 5, decimal.RequireFromString("0.0001"))
	cs.AppendMessage(id, "Ava", "Nice", 12, 6, decimal.RequireFromString("0.0002"))

	stats, err := cs.AggregateStats(id)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint64(33), stats.TotalTokens)
	assert.True(t, stats.TotalCost.Equal(decimal.RequireFromString("0.0003")))

	ava := stats.PerSpeaker["Ava"]
	assert.Equal(t, uint64(12), ava.PromptTokens)
	assert.Equal(t, uint64(6), ava.CompletionTokens)
	assert.True(t, ava.Cost.Equal(decimal.RequireFromString("0.0002")))

	bo := stats.PerSpeaker["Bo"]
	assert.Equal(t, uint64(15), bo.TotalTokens)
}

func TestAggregateStats_NotFound(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	stats, err := cs.AggregateStats("nope")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestListConversations_NewestFirst(t *testing.T) {
	db := testDB(t)
	cs := NewConversationStore(db)
	botA, botB := testBots()

	id1, _ := cs.CreateConversation(botA, botB, "older")
	id2, _ := cs.CreateConversation(botA, botB, "newer")

	// Force distinct created_at values; inserts within the same second tie.
	_, err := db.sql.Exec(`UPDATE conversations SET created_at = '2026-01-01 00:00:00' WHERE id = ?`, id1)
	require.NoError(t, err)
	_, err = db.sql.Exec(`UPDATE conversations SET created_at = '2026-01-02 00:00:00' WHERE id = ?`, id2)
	require.NoError(t, err)

	convs, err := cs.ListConversations()
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "newer", convs[0].Title)
	assert.Equal(t, "older", convs[1].Title)
}

func TestUpdateSystemPrompts(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")

	newA := "You are a pirate."
	require.NoError(t, cs.UpdateSystemPrompts(id, &newA, nil))

	conv, _ := cs.GetConversation(id)
	assert.Equal(t, "You are a pirate.", conv.BotA.SystemPrompt)
	assert.Equal(t, "You are Bo.", conv.BotB.SystemPrompt)

	newB := "You are a judge."
	require.NoError(t, cs.UpdateSystemPrompts(id, nil, &newB))
	conv, _ = cs.GetConversation(id)
	assert.Equal(t, "You are a judge.", conv.BotB.SystemPrompt)

	// No-op with both nil
	require.NoError(t, cs.UpdateSystemPrompts(id, nil, nil))
}

func TestDeleteConversation_RemovesEverything(t *testing.T) {
	db := testDB(t)
	cs := NewConversationStore(db)
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")

	for i := 0; i < 5; i++ {
		_, err := cs.AppendMessage(id, "Ava", "msg", 1, 1, decimal.Zero)
		require.NoError(t, err)
	}

	assert.True(t, cs.DeleteConversation(id))

	conv, err := cs.GetConversation(id)
	require.NoError(t, err)
	assert.Nil(t, conv)

	var count int
	err = db.sql.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteConversation_NotFound(t *testing.T) {
	cs := NewConversationStore(testDB(t))
	assert.False(t, cs.DeleteConversation("nope"))
}

func TestDeleteConversation_FailureLeavesDataIntact(t *testing.T) {
	db := testDB(t)
	cs := NewConversationStore(db)
	botA, botB := testBots()
	id, _ := cs.CreateConversation(botA, botB, "")
	for i := 0; i < 3; i++ {
		_, err := cs.AppendMessage(id, "Ava", "msg", 1, 1, decimal.Zero)
		require.NoError(t, err)
	}

	// Make the second statement of the transaction fail after the message
	// delete succeeded; the rollback must restore the messages.
	_, err := db.sql.Exec(`ALTER TABLE conversations RENAME TO conversations_hidden`)
	require.NoError(t, err)

	assert.False(t, cs.DeleteConversation(id))

	_, err = db.sql.Exec(`ALTER TABLE conversations_hidden RENAME TO conversations`)
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	conv, err := cs.GetConversation(id)
	require.NoError(t, err)
	assert.NotNil(t, conv)
}
