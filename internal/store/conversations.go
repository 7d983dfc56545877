package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pennywise/pennywise/internal/domain"
)

// ErrNotFound is returned when a conversation does not exist for the user.
// A conversation owned by a different user is indistinguishable from one
// that does not exist.
var ErrNotFound = errors.New("conversation not found")

// ConversationStore persists conversations, always scoped to one user.
type ConversationStore interface {
	Get(ctx context.Context, userID, id string) (*domain.Conversation, error)
	Save(ctx context.Context, userID string, conv *domain.Conversation) error
	List(ctx context.Context, userID string) ([]domain.ConversationMeta, error)
	Delete(ctx context.Context, userID, id string) error
}

// ConversationDB is the SQLite-backed ConversationStore.
type ConversationDB struct {
	db *DB
}

// NewConversationDB creates a conversation store on an opened database.
func NewConversationDB(db *DB) *ConversationDB {
	return &ConversationDB{db: db}
}

// Get loads a conversation with its full ordered transcript.
func (s *ConversationDB) Get(ctx context.Context, userID, id string) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var createdAt, updatedAt string
	err := s.db.SQL().QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.SQL().QueryContext(ctx,
		"SELECT id, role, parts, created_at FROM messages WHERE conversation_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg domain.Message
		var parts, created string
		if err := rows.Scan(&msg.ID, &msg.Role, &parts, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
			return nil, fmt.Errorf("parsing message parts: %w", err)
		}
		msg.CreatedAt = parseTime(created)
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return conv, nil
}

// Save upserts the conversation and rewrites its transcript atomically. A
// placeholder title is replaced by one derived from the first user message.
func (s *ConversationDB) Save(ctx context.Context, userID string, conv *domain.Conversation) error {
	if conv.Title == "" || conv.Title == domain.PlaceholderTitle {
		conv.Title = domain.DeriveTitle(conv.FirstUserText())
	}

	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	// Ownership check: never overwrite another user's conversation.
	var owner string
	err = tx.QueryRowContext(ctx, "SELECT user_id FROM conversations WHERE id = ?", conv.ID).Scan(&owner)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking ownership: %w", err)
	}
	if err == nil && owner != userID {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		conv.ID, userID, conv.Title, formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt),
	); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}
	for seq, msg := range conv.Messages {
		parts, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("encoding message parts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (id, conversation_id, seq, role, parts, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, conv.ID, seq, msg.Role, string(parts), formatTime(msg.CreatedAt),
		); err != nil {
			return fmt.Errorf("saving message %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// List returns the user's conversations, most recently updated first.
func (s *ConversationDB) List(ctx context.Context, userID string) ([]domain.ConversationMeta, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		"SELECT id, title, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var metas []domain.ConversationMeta
	for rows.Next() {
		var m domain.ConversationMeta
		var updated string
		if err := rows.Scan(&m.ID, &m.Title, &updated); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		m.UpdatedAt = parseTime(updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *ConversationDB) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.SQL().ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
