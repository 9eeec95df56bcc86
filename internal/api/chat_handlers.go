package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/chat"
	"github.com/JakeFAU/resona/internal/metrics"
)

type chatRequest struct {
	Content string    `json:"content"`
	Type    chat.Type `json:"type"`
}

func (s *Server) listChat(w http.ResponseWriter, r *http.Request) {
	msgs := []chat.Message{}
	if s.deps.Chat != nil {
		msgs = s.deps.Chat.Messages(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msg, err := s.deps.Chat.Post(r.Context(), req.Type, req.Content, nil)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "Message content is required")
			return
		}
		s.logger.Error("chat post failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	metrics.ObserveChatMessage(string(msg.Type))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}
