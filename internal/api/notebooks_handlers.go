package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/store"
)

const (
	defaultNotebookLimit = 50
	maxNotebookLimit     = 500
	repoTimeout          = 5 * time.Second
)

type noteRequest struct {
	Text string `json:"text"`
}

// listNotebooks handles GET /api/notebooks?limit=&offset=. Notebooks are
// returned newest first.
func (s *Server) listNotebooks(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultNotebookLimit, maxNotebookLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()

	nbs, err := s.deps.Repository.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list notebooks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list notebooks")
		return
	}
	if nbs == nil {
		nbs = []store.Notebook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notebooks": nbs})
}

func (s *Server) getNotebook(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()

	nb, err := s.deps.Repository.Get(ctx, chi.URLParam(r, "notebookId"))
	if err != nil {
		s.writeRepoError(w, err, "Notebook not found", "Failed to load notebook")
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}
	kind, err := store.ParseNoteKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Note kind must be insights, opportunities, or pain_points")
		return
	}
	text, ok := s.noteText(w, r)
	if !ok {
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("note id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to add note")
		return
	}
	note := store.Note{ID: id, Text: text, Timestamp: s.now()}

	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()
	if err := s.deps.Repository.AddNote(ctx, chi.URLParam(r, "notebookId"), kind, note); err != nil {
		s.writeRepoError(w, err, "Notebook not found", "Failed to add note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}
	kind, err := store.ParseNoteKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Note kind must be insights, opportunities, or pain_points")
		return
	}
	text, ok := s.noteText(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()
	nbID, noteID := chi.URLParam(r, "notebookId"), chi.URLParam(r, "noteId")
	if err := s.deps.Repository.UpdateNote(ctx, nbID, kind, noteID, text); err != nil {
		s.writeRepoError(w, err, "Note not found", "Failed to update note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": noteID, "text": text})
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	if !s.requireRepo(w) {
		return
	}
	kind, err := store.ParseNoteKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Note kind must be insights, opportunities, or pain_points")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), repoTimeout)
	defer cancel()
	if err := s.deps.Repository.DeleteNote(ctx, chi.URLParam(r, "notebookId"), kind, chi.URLParam(r, "noteId")); err != nil {
		s.writeRepoError(w, err, "Note not found", "Failed to delete note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) noteText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "Note text is required")
		return "", false
	}
	return text, true
}

func (s *Server) requireRepo(w http.ResponseWriter) bool {
	if s.deps.Repository == nil {
		writeError(w, http.StatusServiceUnavailable, "notebook repository unavailable")
		return false
	}
	return true
}

func (s *Server) writeRepoError(w http.ResponseWriter, err error, notFound, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error(strings.ToLower(msg), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := defaultLimit
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
