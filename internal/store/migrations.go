package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				title       TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_user ON conversations (user_id, updated_at DESC);

			CREATE TABLE messages (
				id               TEXT PRIMARY KEY,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				seq              INTEGER NOT NULL,
				role             TEXT NOT NULL,
				parts            TEXT NOT NULL,
				created_at       TEXT NOT NULL
			);

			CREATE UNIQUE INDEX idx_messages_order ON messages (conversation_id, seq);
		`,
	},
}
