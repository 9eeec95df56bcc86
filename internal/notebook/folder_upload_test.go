package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/drive"
)

func TestUploadToFolderValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tests := []struct {
		name string
		req  FolderUploadRequest
		want string
	}{
		{"missing folder", FolderUploadRequest{AccessToken: testToken}, "Google Drive folder ID is required"},
		{"missing token", FolderUploadRequest{FolderID: testParent}, "Access token is required. Please authenticate with Google Drive first."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.creator.UploadToFolder(context.Background(), tc.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.want, ve.Message)
		})
	}
	require.Empty(t, h.drive.Tokens())
}

func TestUploadToFolderSendsAllAudioByDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store(t, "a.mp3", "b.flac")
	_, err := h.uploads.Save(context.Background(), "notes.txt", "audio/mpeg", strings.NewReader("x"))
	require.NoError(t, err)

	res, err := h.creator.UploadToFolder(context.Background(), FolderUploadRequest{
		FolderID:    "https://drive.google.com/drive/folders/" + testParent,
		AccessToken: testToken,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Files, 2)
	require.Equal(t, "Successfully uploaded 2 file(s) to Google Drive", res.Message)
	for _, c := range h.drive.Calls() {
		require.Equal(t, testParent, c.ParentID)
		require.True(t, drive.IsAudioName(c.Name))
	}
}

func TestUploadToFolderSelectedFiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ids := h.store(t, "a.mp3", "b.mp3")

	res, err := h.creator.UploadToFolder(context.Background(), FolderUploadRequest{
		FolderID:    testParent,
		FileIDs:     []string{ids[1], "unknown.mp3"},
		AccessToken: testToken,
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	require.Equal(t, "b.mp3", res.Files[0].Name)
}

func TestUploadToFolderNoFiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.creator.UploadToFolder(context.Background(), FolderUploadRequest{FolderID: testParent, AccessToken: testToken})
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindNoFiles, se.Kind)
	require.Equal(t, "No audio files found to upload", se.Message)
	require.Empty(t, h.drive.Tokens())
}

func TestFolderErrorClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     error
		kind    ErrorKind
		message string
	}{
		{"missing", fmt.Errorf("get: %w", drive.ErrNotFound), KindFolderNotFound, "Folder not found: f1"},
		{"forbidden", fmt.Errorf("get: %w", drive.ErrForbidden), KindFolderForbidden, "Access denied to folder"},
		{"expired", fmt.Errorf("get: %w", drive.ErrUnauthenticated), KindAuth, "Invalid or expired access token"},
		{"other", errors.New("503"), KindUpstream, "Failed to verify folder access"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var se *StepError
			require.ErrorAs(t, folderError("f1", tc.err), &se)
			require.Equal(t, tc.kind, se.Kind)
			require.Equal(t, tc.message, se.Message)
		})
	}
}

func TestUploadToFolderMissingFolderEndToEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store(t, "a.mp3")

	_, err := h.creator.UploadToFolder(context.Background(), FolderUploadRequest{FolderID: "nope", AccessToken: testToken})
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindFolderNotFound, se.Kind)
	require.Empty(t, h.drive.Calls())
}

func TestUploadToFolderAllFail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store(t, "a.mp3")
	h.drive.FailFiles["a.mp3"] = errors.New("insufficient permissions")

	_, err := h.creator.UploadToFolder(context.Background(), FolderUploadRequest{FolderID: testParent, AccessToken: testToken})
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, KindNoUploads, se.Kind)
	require.Equal(t, []FileError{{File: "a.mp3", Error: "insufficient permissions"}}, se.Files)
}
