package gateway

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pennywise/pennywise/internal/agent"
	"github.com/pennywise/pennywise/internal/domain"
)

// handleWebSocket mirrors the chat stream over a WebSocket: the client
// sends one chat request per message and receives the same event frames
// the SSE endpoint emits, with the [DONE] sentinel as a text frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identify(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatBody)

	s.log.Debug().Str("userId", ident.UserID).Str("remote", r.RemoteAddr).Msg("websocket connected")

	// Writes come from the runner's sink and from this loop; serialize them.
	var writeMu sync.Mutex
	send := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.WriteJSON(v)
	}

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		turn, hasTurn := req.userTurn()
		if !hasTurn && req.Confirm == nil {
			send(agent.Event{Type: agent.EventError, Error: "messages must end with a user message"})
			continue
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			conversationID = uuid.NewString()
		}
		if !s.acquireTurn(ident.UserID, conversationID) {
			send(agent.Event{Type: agent.EventError, Error: "a turn is already running for this conversation"})
			continue
		}

		conv, err := s.loadOrCreate(r.Context(), ident.UserID, conversationID)
		if err != nil {
			s.releaseTurn(ident.UserID, conversationID)
			send(agent.Event{Type: agent.EventError, Error: err.Error()})
			continue
		}

		var turnPtr *domain.Message
		if hasTurn {
			turnPtr = &turn
		}
		runErr := s.runTurn(r.Context(), ident, turnPtr, req.Confirm, conv, func(evt agent.Event) { send(evt) })
		s.releaseTurn(ident.UserID, conversationID)
		if runErr == nil {
			writeMu.Lock()
			conn.WriteMessage(websocket.TextMessage, []byte(doneSentinel))
			writeMu.Unlock()
		}
	}
}
