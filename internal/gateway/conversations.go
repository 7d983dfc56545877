package gateway

import (
	"errors"
	"net/http"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/store"
)

// handleConversationList returns the caller's conversations, newest first.
func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identify(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	metas, err := s.convs.List(r.Context(), ident.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if metas == nil {
		metas = []domain.ConversationMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": metas})
}

// handleConversationGet returns one conversation with its full transcript.
func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identify(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	conv, err := s.convs.Get(r.Context(), ident.UserID, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleConversationDelete removes a conversation.
func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	ident, err := s.identify(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	err = s.convs.Delete(r.Context(), ident.UserID, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
