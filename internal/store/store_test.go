package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/logging"
)

func stores(t *testing.T) map[string]ConversationStore {
	t.Helper()
	db, err := Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]ConversationStore{
		"sqlite": NewConversationDB(db),
		"memory": NewMemoryConversationStore(),
	}
}

func sampleConversation() domain.Conversation {
	conv := domain.NewConversation("c1")
	conv.Append(domain.Message{
		ID:        "m1",
		Role:      domain.RoleUser,
		Parts:     []domain.Part{domain.TextPart("add a $4.50 coffee")},
		CreatedAt: time.Now().UTC(),
	})
	conv.Append(domain.Message{
		ID:   "m2",
		Role: domain.RoleAssistant,
		Parts: []domain.Part{
			domain.ToolPart(domain.ToolInvocation{
				ToolName: "add_expense",
				CallID:   "tc1",
				State:    domain.ToolStateOutputAvailable,
				Input:    json.RawMessage(`{"description":"coffee","amountCents":450}`),
				Output:   domain.MustEncodeToolOutput(domain.PendingConfirmation{Action: "add_expense", Summary: "Add coffee"}),
			}),
			domain.TextPart("Shall I add it?"),
		},
		CreatedAt: time.Now().UTC(),
	})
	return conv
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := sampleConversation()
			require.NoError(t, s.Save(ctx, "u1", &conv))

			got, err := s.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			require.Len(t, got.Messages, 2)

			assert.Equal(t, "m1", got.Messages[0].ID)
			assert.Equal(t, "add a $4.50 coffee", got.Messages[0].Text())

			invs := got.Messages[1].ToolInvocations()
			require.Len(t, invs, 1)
			assert.Equal(t, "add_expense", invs[0].ToolName)
			assert.Equal(t, "tc1", invs[0].CallID)
			assert.Equal(t, domain.ToolStateOutputAvailable, invs[0].State)
			assert.JSONEq(t, `{"description":"coffee","amountCents":450}`, string(invs[0].Input))

			out, err := domain.DecodeToolOutput(invs[0].Output)
			require.NoError(t, err)
			pending, ok := out.(domain.PendingConfirmation)
			require.True(t, ok, "got %T", out)
			assert.Equal(t, "Add coffee", pending.Summary)

			assert.Equal(t, "Shall I add it?", got.Messages[1].Text())
		})
	}
}

func TestTitleDerivedOnFirstSave(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := sampleConversation()
			require.Equal(t, domain.PlaceholderTitle, conv.Title)

			require.NoError(t, s.Save(ctx, "u1", &conv))
			got, err := s.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "add a $4.50 coffee", got.Title)
		})
	}
}

func TestUserScoping(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := sampleConversation()
			require.NoError(t, s.Save(ctx, "u1", &conv))

			// Another user sees nothing, by id or in listings.
			_, err := s.Get(ctx, "u2", "c1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "u2", "c1"), ErrNotFound)

			metas, err := s.List(ctx, "u2")
			require.NoError(t, err)
			assert.Empty(t, metas)

			// Nor can they overwrite it under their own id.
			stolen := sampleConversation()
			assert.ErrorIs(t, s.Save(ctx, "u2", &stolen), ErrNotFound)

			got, err := s.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Len(t, got.Messages, 2)
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := domain.NewConversation("old")
			old.UpdatedAt = time.Now().Add(-time.Hour)
			old.Append(domain.Message{ID: "m1", Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("older chat")}})
			old.UpdatedAt = time.Now().Add(-time.Hour)
			require.NoError(t, s.Save(ctx, "u1", &old))

			fresh := domain.NewConversation("fresh")
			fresh.Append(domain.Message{ID: "m2", Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("newer chat")}})
			require.NoError(t, s.Save(ctx, "u1", &fresh))

			metas, err := s.List(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, metas, 2)
			assert.Equal(t, "fresh", metas[0].ID)
			assert.Equal(t, "old", metas[1].ID)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := sampleConversation()
			require.NoError(t, s.Save(ctx, "u1", &conv))

			require.NoError(t, s.Delete(ctx, "u1", "c1"))
			_, err := s.Get(ctx, "u1", "c1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "u1", "c1"), ErrNotFound)
		})
	}
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/pennywise.db"

	db, err := Open(path, logging.Nop())
	require.NoError(t, err)
	conv := sampleConversation()
	require.NoError(t, NewConversationDB(db).Save(ctx, "u1", &conv))
	require.NoError(t, db.Close())

	// A second open replays no migrations and sees the saved data.
	db, err = Open(path, logging.Nop())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	got, err := NewConversationDB(db).Get(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestSaveIsIdempotentReplace(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := sampleConversation()
			require.NoError(t, s.Save(ctx, "u1", &conv))

			conv.Append(domain.Message{ID: "m3", Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("yes")}})
			require.NoError(t, s.Save(ctx, "u1", &conv))
			require.NoError(t, s.Save(ctx, "u1", &conv))

			got, err := s.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Len(t, got.Messages, 3)
		})
	}
}
