package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// PlaceholderTitle marks a conversation whose title has not been derived yet.
const PlaceholderTitle = "New conversation"

// titleMaxLen caps derived titles, in runes.
const titleMaxLen = 48

// Conversation is an ordered transcript owned by exactly one user.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// ConversationMeta is the listing projection of a conversation. It is never
// used for replay.
type ConversationMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewConversation creates an empty conversation with a placeholder title.
func NewConversation(id string) Conversation {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return Conversation{
		ID:        id,
		Title:     PlaceholderTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and bumps the updated timestamp. Messages are never
// reordered.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// Meta returns the listing projection.
func (c Conversation) Meta() ConversationMeta {
	return ConversationMeta{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
}

// FirstUserText returns the text of the first user message, or "".
func (c Conversation) FirstUserText() string {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return m.Text()
		}
	}
	return ""
}

// DeriveTitle builds a short title from the first user message text.
// Returns PlaceholderTitle when there is nothing to derive from.
func DeriveTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return PlaceholderTitle
	}
	runes := []rune(text)
	if len(runes) <= titleMaxLen {
		return text
	}
	cut := titleMaxLen
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = titleMaxLen
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
