package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/notebook"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string               `json:"error"`
	Hint    string               `json:"hint,omitempty"`
	Tip     string               `json:"tip,omitempty"`
	Details string               `json:"details,omitempty"`
	Errors  []notebook.FileError `json:"errors,omitempty"`
	// ProgressID lets a client read the terminal record of a failed run.
	ProgressID string `json:"progressId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeWorkflowError maps notebook errors onto status codes and the
// {error, hint, tip} body.
func writeWorkflowError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var ve *notebook.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Message)
		return
	}
	var se *notebook.StepError
	if errors.As(err, &se) {
		body := errorBody{
			Error:      se.Message,
			Hint:       se.Hint,
			Tip:        se.Tip,
			Errors:     se.Files,
			ProgressID: se.OperationID,
		}
		status := statusForKind(se.Kind)
		if se.Err != nil && status >= http.StatusInternalServerError {
			body.Details = se.Err.Error()
		}
		writeJSON(w, status, body)
		return
	}
	logger.Error(fallback, zap.Error(err))
	writeError(w, http.StatusInternalServerError, fallback)
}

func statusForKind(kind notebook.ErrorKind) int {
	switch kind {
	case notebook.KindAuth:
		return http.StatusUnauthorized
	case notebook.KindParentFolder, notebook.KindFolderNotFound:
		return http.StatusBadRequest
	case notebook.KindFolderForbidden:
		return http.StatusForbidden
	case notebook.KindNoFiles:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
