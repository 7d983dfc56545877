package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pennywise/pennywise/internal/agent"
	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/store"
	"github.com/pennywise/pennywise/internal/tools"
)

// maxChatBody bounds the request body size.
const maxChatBody = 1 << 20

// chatRequest is one user turn. The trailing message must have the user
// role; it becomes the new turn. Earlier entries are the client's rendering
// of the transcript and are ignored: the stored conversation is the source
// of truth for history. Messages may be empty only when the request carries
// a confirmation directive.
type chatRequest struct {
	ConversationID string                  `json:"conversationId,omitempty"`
	Messages       []domain.Message        `json:"messages"`
	Confirm        *agent.ConfirmDirective `json:"confirm,omitempty"`
}

// userTurn returns the trailing user message, if the request has one.
func (req chatRequest) userTurn() (domain.Message, bool) {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == domain.RoleUser {
		return req.Messages[n-1], true
	}
	return domain.Message{}, false
}

// doneSentinel terminates a successful stream. It is never sent after an
// error frame.
const doneSentinel = "[DONE]"

// handleChat runs one turn and streams its events as server-sent data
// frames. Each event is one `data: <json>` frame; a clean turn ends with
// the [DONE] sentinel.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identify(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
		return
	}
	turn, hasTurn := req.userTurn()
	if !hasTurn && req.Confirm == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages must end with a user message")
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if !s.acquireTurn(ident.UserID, conversationID) {
		writeError(w, http.StatusConflict, "conversation_busy", "a turn is already running for this conversation")
		return
	}
	defer s.releaseTurn(ident.UserID, conversationID)

	conv, err := s.loadOrCreate(r.Context(), ident.UserID, conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-Id", conversationID)
	w.WriteHeader(http.StatusOK)

	sink := func(evt agent.Event) {
		frame, err := json.Marshal(evt)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(frame)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	var turnPtr *domain.Message
	if hasTurn {
		turnPtr = &turn
	}
	if runErr := s.runTurn(r.Context(), ident, turnPtr, req.Confirm, conv, sink); runErr != nil {
		// The error frame already went out; the stream ends without [DONE].
		return
	}

	w.Write([]byte("data: " + doneSentinel + "\n\n"))
	flusher.Flush()
}

// loadOrCreate fetches the conversation or starts a fresh one under the
// requested id.
func (s *Server) loadOrCreate(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.convs.Get(ctx, userID, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		fresh := domain.NewConversation(conversationID)
		return &fresh, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// runTurn appends the user message, runs the step loop, and persists the
// transcript. The user message survives even when the turn fails.
func (s *Server) runTurn(ctx context.Context, ident domain.Identity, turn *domain.Message, confirm *agent.ConfirmDirective, conv *domain.Conversation, sink agent.Sink) error {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	if turn != nil {
		msg := *turn
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		conv.Append(msg)
	}

	reg := tools.Build(s.backend, ident, s.log)
	assistant, runErr := s.runner.Run(ctx, conv, ident, reg, confirm, sink)
	if runErr == nil {
		conv.Append(assistant)
	}

	if err := s.convs.Save(context.WithoutCancel(ctx), ident.UserID, conv); err != nil {
		s.log.Error().Err(err).Str("conversationId", conv.ID).Msg("saving conversation failed")
	}
	return runErr
}
