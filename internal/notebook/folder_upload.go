package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/drive"
	"github.com/JakeFAU/resona/internal/uploads"
)

// FolderUploadRequest is the body of POST /api/drive/upload.
type FolderUploadRequest struct {
	FolderID    string   `json:"folderId"`
	FileIDs     []string `json:"fileIds,omitempty"`
	AccessToken string   `json:"accessToken"`
}

// Validate checks the required fields.
func (r FolderUploadRequest) Validate() error {
	if strings.TrimSpace(r.FolderID) == "" {
		return &ValidationError{Message: "Google Drive folder ID is required"}
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return &ValidationError{Message: "Access token is required. Please authenticate with Google Drive first."}
	}
	return nil
}

// FolderUploadResult reports the files copied into an existing folder.
type FolderUploadResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Files   []UploadedFile `json:"files"`
	Errors  []FileError    `json:"errors,omitempty"`
}

// UploadToFolder copies stored audio files into an existing Drive folder.
// With no FileIDs every stored audio file is sent. Unknown IDs are skipped.
func (c *Creator) UploadToFolder(ctx context.Context, req FolderUploadRequest) (*FolderUploadResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	folderID := drive.ExtractFolderID(req.FolderID)
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.upload_to_folder", trace.WithAttributes(
		attribute.String("drive.folder_id", folderID),
	))
	defer span.End()
	logger := c.deps.Logger.With(zap.String("folder_id", folderID))

	files, err := c.selectFiles(ctx, req.FileIDs)
	if err != nil {
		return nil, &StepError{Kind: KindUpstream, Message: "Failed to list uploaded files", Err: err}
	}
	if len(files) == 0 {
		return nil, &StepError{Kind: KindNoFiles, Message: "No audio files found to upload"}
	}

	svc, err := c.deps.Drive.ForToken(ctx, req.AccessToken)
	if err != nil {
		return nil, authError(err)
	}
	folder, err := svc.GetFolder(ctx, folderID)
	if err != nil {
		logger.Warn("folder verification failed", zap.Error(err))
		return nil, folderError(folderID, err)
	}
	logger.Info("folder verified", zap.String("folder", folder.Name))

	var (
		uploaded []UploadedFile
		failed   []FileError
	)
	for _, f := range files {
		up, _, err := c.uploadOne(ctx, svc, folderID, f.Filename, f.OriginalName)
		if err != nil {
			logger.Warn("drive upload failed", zap.String("file", f.OriginalName), zap.Error(err))
			failed = append(failed, FileError{File: f.OriginalName, Error: err.Error()})
			continue
		}
		uploaded = append(uploaded, up)
	}
	if len(uploaded) == 0 {
		return nil, &StepError{
			Kind:    KindNoUploads,
			Message: "Failed to upload any files to Google Drive",
			Hint:    "Check the errors array for details. Common issues: Invalid token, expired token, or insufficient permissions.",
			Tip:     expiryTip,
			Files:   failed,
		}
	}
	if len(failed) > 0 {
		logger.Warn("some files failed to upload", zap.Int("failed", len(failed)), zap.Int("uploaded", len(uploaded)))
	}
	return &FolderUploadResult{
		Success: true,
		Message: fmt.Sprintf("Successfully uploaded %d file(s) to Google Drive", len(uploaded)),
		Files:   uploaded,
		Errors:  failed,
	}, nil
}

func (c *Creator) selectFiles(ctx context.Context, ids []string) ([]uploads.FileInfo, error) {
	if len(ids) == 0 {
		return c.deps.Audio.ListAudio(ctx)
	}
	out := make([]uploads.FileInfo, 0, len(ids))
	for _, id := range ids {
		info, err := c.deps.Audio.Stat(ctx, id)
		if errors.Is(err, uploads.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, uploads.FileInfo{
			Filename:     id,
			OriginalName: uploads.OriginalName(id),
			Size:         info.Size,
			UploadedAt:   info.ModTime,
		})
	}
	return out, nil
}

func folderError(id string, err error) error {
	switch {
	case errors.Is(err, drive.ErrNotFound):
		return &StepError{
			Kind:    KindFolderNotFound,
			Message: "Folder not found: " + id,
			Hint:    "Please check that the folder ID is correct and you have access to it.",
			Tip:     scopeTip,
			Err:     err,
		}
	case errors.Is(err, drive.ErrForbidden):
		return &StepError{
			Kind:    KindFolderForbidden,
			Message: "Access denied to folder",
			Hint:    "The access token does not have permission to access this folder.",
			Tip:     "Make sure you own the folder or have been granted access, and use scope: https://www.googleapis.com/auth/drive",
			Err:     err,
		}
	case errors.Is(err, drive.ErrUnauthenticated):
		return authError(err)
	default:
		return &StepError{
			Kind:    KindUpstream,
			Message: "Failed to verify folder access",
			Tip:     "Check that your access token is valid and has the correct scope",
			Err:     err,
		}
	}
}
