package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/chat"
	"github.com/JakeFAU/resona/internal/metrics"
	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/uploads"
)

const uploadField = "audioFiles"

type uploadResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	Files       []uploads.Upload `json:"files"`
	ChatMessage *chat.Message    `json:"chatMessage,omitempty"`
}

// upload handles POST /api/upload. Parts are streamed straight into the
// upload store; a rejected part rolls back the files stored before it.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	limits := s.deps.Uploads.Limits()
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio files uploaded")
		return
	}

	var stored []uploads.Upload
	rollback := func() {
		for _, up := range stored {
			if err := s.deps.Uploads.Delete(context.WithoutCancel(r.Context()), up.StoredFilename); err != nil {
				s.logger.Warn("rollback failed", zap.String("stored", up.StoredFilename), zap.Error(err))
			}
		}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rollback()
			writeError(w, http.StatusBadRequest, "Malformed multipart body")
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if len(stored) >= limits.MaxFiles {
			_ = part.Close()
			rollback()
			metrics.ObserveUpload("too_many", 0)
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Too many files: at most %d per upload", limits.MaxFiles))
			return
		}
		up, err := s.savePart(r.Context(), part)
		if err != nil {
			rollback()
			s.writeUploadError(w, err)
			return
		}
		metrics.ObserveUpload("stored", up.Size)
		stored = append(stored, up)
	}
	if len(stored) == 0 {
		writeError(w, http.StatusBadRequest, "No audio files uploaded")
		return
	}

	resp := uploadResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully uploaded %d file(s)", len(stored)),
		Files:   stored,
	}
	if msg, ok := s.systemMessage(r.Context(), fmt.Sprintf("Uploaded %d audio file(s)", len(stored)), stored); ok {
		resp.ChatMessage = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) savePart(ctx context.Context, part *multipart.Part) (uploads.Upload, error) {
	defer func() { _ = part.Close() }()
	name := filepath.Base(filepath.Clean("/" + part.FileName()))
	mt, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil {
		mt = ""
	}
	return s.deps.Uploads.Save(ctx, name, mt, part)
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploads.ErrNotAudio):
		metrics.ObserveUpload("not_audio", 0)
		writeError(w, http.StatusBadRequest, "Only audio files are allowed!")
	case errors.Is(err, uploads.ErrTooLarge):
		metrics.ObserveUpload("too_large", 0)
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
	default:
		metrics.ObserveUpload("error", 0)
		s.logger.Error("upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to upload files")
	}
}

// systemMessage appends to the chat history. Chat is best effort.
func (s *Server) systemMessage(ctx context.Context, content string, files any) (chat.Message, bool) {
	if s.deps.Chat == nil {
		return chat.Message{}, false
	}
	msg, err := s.deps.Chat.System(ctx, content, files)
	if err != nil {
		s.logger.Warn("chat message dropped", zap.Error(err))
		return chat.Message{}, false
	}
	metrics.ObserveChatMessage(string(chat.TypeSystem))
	return msg, true
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Uploads.List(r.Context())
	if err != nil {
		s.logger.Error("list files failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rc, info, err := s.deps.Uploads.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.logger.Error("open file failed", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer func() { _ = rc.Close() }()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, uploads.OriginalName(name), info.ModTime, rs)
		return
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("file stream interrupted", zap.String("file", name), zap.Error(err))
	}
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if err := s.deps.Uploads.Delete(r.Context(), name); err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.logger.Error("delete file failed", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted successfully"})
}

type driveUploadResponse struct {
	*notebook.FolderUploadResult
	ChatMessage *chat.Message `json:"chatMessage,omitempty"`
}

// driveFileEntry is the chat attachment shape for Drive uploads.
type driveFileEntry struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

func (s *Server) driveUpload(w http.ResponseWriter, r *http.Request) {
	var req notebook.FolderUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.deps.Notebooks.UploadToFolder(r.Context(), req)
	if err != nil {
		writeWorkflowError(w, s.logger, err, "Failed to upload files to Google Drive")
		return
	}
	entries := make([]driveFileEntry, 0, len(res.Files))
	for _, f := range res.Files {
		entries = append(entries, driveFileEntry{ID: f.ID, Filename: f.Name, Size: f.Size, WebViewLink: f.WebViewLink})
	}
	resp := driveUploadResponse{FolderUploadResult: res}
	if msg, ok := s.systemMessage(r.Context(), fmt.Sprintf("Uploaded %d audio file(s) to Google Drive", len(res.Files)), entries); ok {
		resp.ChatMessage = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}
