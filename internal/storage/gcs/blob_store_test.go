package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	blob "github.com/JakeFAU/resona/internal/storage"
)

const objectJSON = `{"name":"uploads/%s","bucket":"test-bucket","size":"4","contentType":"audio/mpeg","updated":"2025-03-01T12:00:00Z"}`

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "uploads/"})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	assert.Error(t, err)
}

func TestPutObject(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket/o")
		assert.Equal(t, "uploads/1-a.mp3", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "ID3!")
		fmt.Fprintf(w, objectJSON, "1-a.mp3")
	})
	store := newTestStore(t, handler)

	info, err := store.PutObject(context.Background(), "1-a.mp3", "audio/mpeg", strings.NewReader("ID3!"))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/uploads/1-a.mp3", info.URI)
	assert.EqualValues(t, 4, info.Size)
	assert.Equal(t, "audio/mpeg", info.ContentType)
}

func TestPutObjectRejectsBadName(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), "../x", "", strings.NewReader(""))
	assert.Error(t, err)
}

func TestPutObjectServerError(t *testing.T) {
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := store.PutObject(context.Background(), "1-a.mp3", "audio/mpeg", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestStatObject(t *testing.T) {
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		fmt.Fprintf(w, objectJSON, "1-a.mp3")
	}))

	info, err := store.StatObject(context.Background(), "1-a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "1-a.mp3", info.Name)
	assert.Equal(t, 2025, info.ModTime.Year())

	_, err = store.StatObject(context.Background(), "missing.mp3")
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
}

func TestListObjects(t *testing.T) {
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uploads/", r.URL.Query().Get("prefix"))
		fmt.Fprintf(w, `{"items":[%s,%s]}`,
			fmt.Sprintf(objectJSON, "2-b.wav"), fmt.Sprintf(objectJSON, "1-a.mp3"))
	}))

	list, err := store.ListObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1-a.mp3", list[0].Name)
	assert.Equal(t, "2-b.wav", list[1].Name)
}

func TestDeleteObject(t *testing.T) {
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, store.DeleteObject(context.Background(), "1-a.mp3"))
}
