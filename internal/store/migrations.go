package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
// Monetary amounts are stored as decimal strings, never floats.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id                  TEXT PRIMARY KEY,
				title               TEXT NOT NULL DEFAULT '',
				created_at          TEXT NOT NULL DEFAULT (datetime('now')),
				bot_a_name          TEXT NOT NULL,
				bot_a_system_prompt TEXT NOT NULL,
				bot_a_model         TEXT NOT NULL,
				bot_b_name          TEXT NOT NULL,
				bot_b_system_prompt TEXT NOT NULL,
				bot_b_model         TEXT NOT NULL,
				total_tokens        INTEGER NOT NULL DEFAULT 0,
				total_cost          TEXT NOT NULL DEFAULT '0'
			);

			CREATE INDEX idx_conversations_created ON conversations (created_at);

			CREATE TABLE messages (
				id                INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id   TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				timestamp         TEXT NOT NULL DEFAULT (datetime('now')),
				speaker           TEXT NOT NULL,
				content           TEXT NOT NULL,
				prompt_tokens     INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens      INTEGER NOT NULL DEFAULT 0,
				cost              TEXT NOT NULL DEFAULT '0'
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, id);
		`,
	},
}
