package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/operation"
)

const maxJSONBody = 1 << 20

type acceptedResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProgressID  string `json:"progressId"`
	OperationID string `json:"operationId"`
	StatusURL   string `json:"statusUrl"`
}

// createNotebook handles POST /api/notebook/create. By default the response
// waits for the whole run. With ?async=true or "Prefer: respond-async" it
// answers 202 once the request is validated and the run continues in the
// background.
func (s *Server) createNotebook(w http.ResponseWriter, r *http.Request) {
	var req notebook.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if wantsAsync(r) {
		id, done, err := s.deps.Notebooks.Start(r.Context(), req)
		if err != nil {
			writeWorkflowError(w, s.logger, err, "Failed to create research notebook")
			return
		}
		go s.logOutcome(id, done)
		statusURL := "/api/notebook/progress/" + id
		w.Header().Set("Location", statusURL)
		w.Header().Set("Preference-Applied", "respond-async")
		writeJSON(w, http.StatusAccepted, acceptedResponse{
			Success:     true,
			Message:     "Notebook creation started",
			ProgressID:  id,
			OperationID: id,
			StatusURL:   statusURL,
		})
		return
	}

	res, err := s.deps.Notebooks.Create(r.Context(), req)
	if err != nil {
		writeWorkflowError(w, s.logger, err, "Failed to create research notebook")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) logOutcome(id string, done <-chan notebook.Outcome) {
	out := <-done
	if out.Err != nil {
		s.logger.Info("background notebook run failed", zap.String("operation_id", id), zap.Error(out.Err))
		return
	}
	s.logger.Info("background notebook run finished",
		zap.String("operation_id", id),
		zap.String("folder_id", out.Result.FolderID))
}

func wantsAsync(r *http.Request) bool {
	if v := r.URL.Query().Get("async"); v == "true" || v == "1" {
		return true
	}
	for _, pref := range r.Header.Values("Prefer") {
		for _, token := range strings.Split(pref, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "respond-async") {
				return true
			}
		}
	}
	return false
}

// getProgress handles GET /api/notebook/progress/{progressId}.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "progressId")
	rec, err := s.deps.Progress.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, operation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Progress not found")
			return
		}
		s.logger.Error("progress lookup failed", zap.String("operation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load progress")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, rec.Status)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
