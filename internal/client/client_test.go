package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStatusMapsNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notebook/progress/op-1":
			writeJSON(w, http.StatusOK, operation.Status{Step: operation.StepUploadingAudio, Message: "Uploading 1/2", Progress: 50})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Progress not found"})
		}
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL + "/"}, srv.Client())

	st, err := c.Status(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, 50, st.Progress)
	require.Equal(t, operation.StepUploadingAudio, st.Step)

	_, err = c.Status(context.Background(), "gone")
	require.ErrorIs(t, err, operation.ErrNotFound)
}

func TestCreateNotebookDecodesErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notebook/create", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "Invalid or expired access token",
			"hint":  "Please get a new access token from OAuth Playground",
		})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL}, srv.Client())

	_, err := c.CreateNotebook(context.Background(), notebook.CreateRequest{ProjectName: "p"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "Invalid or expired access token", apiErr.Message)
	require.Contains(t, apiErr.Error(), "OAuth Playground")
}

func TestStartNotebookRequestsAsync(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.URL.Query().Get("async"))
		var body notebook.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Checkout", body.ProjectName)
		require.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		writeJSON(w, http.StatusAccepted, Accepted{ProgressID: "op-7", OperationID: "op-7"})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "secret"}, srv.Client())

	acc, err := c.StartNotebook(context.Background(), notebook.CreateRequest{ProjectName: "Checkout"})
	require.NoError(t, err)
	require.Equal(t, "op-7", acc.ProgressID)
}

func TestUploadSendsMultipart(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["audioFiles"]
		require.Len(t, files, 2)
		require.Equal(t, "a.mp3", files[0].Filename)
		require.Equal(t, "audio/mpeg", files[0].Header.Get("Content-Type"))
		f, err := files[1].Open()
		require.NoError(t, err)
		body, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "bbb", string(body))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Successfully uploaded 2 file(s)",
			"files":   []map[string]any{{"filename": "a.mp3"}, {"filename": "b.wav"}},
		})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL}, srv.Client())

	res, err := c.Upload(context.Background(), []File{
		{Name: "a.mp3", ContentType: "audio/mpeg", Body: strings.NewReader("aaa")},
		{Name: "b.wav", ContentType: "audio/wav", Body: strings.NewReader("bbb")},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Files, 2)
	require.Equal(t, "b.wav", res.Files[1].Filename)
}

func TestListNotebooksPassesPaging(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		require.Empty(t, r.URL.Query().Get("offset"))
		writeJSON(w, http.StatusOK, map[string]any{
			"notebooks": []store.Notebook{{ID: "nb-1", ProjectName: "One"}},
		})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL}, srv.Client())

	list, err := c.ListNotebooks(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "One", list[0].ProjectName)
}

func TestAddNote(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/notebooks/nb-1/notes/insights", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, store.Note{ID: "n-1", Text: body["text"]})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL}, srv.Client())

	note, err := c.AddNote(context.Background(), "nb-1", store.NoteInsight, "Users skip onboarding")
	require.NoError(t, err)
	require.Equal(t, "Users skip onboarding", note.Text)
}

func TestRetriesReadsOnServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": []any{}})
	}))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, RetryCount: 2}, srv.Client())

	files, err := c.ListFiles(context.Background())
	require.NoError(t, err)
	require.Empty(t, files)
	require.Equal(t, int32(2), calls.Load())
}
