package drive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func newTestService(t *testing.T, handler http.HandlerFunc) Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	factory := NewServiceFactory(option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	svc, err := factory.ForToken(context.Background(), "ya29.token")
	require.NoError(t, err)
	return svc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func TestForTokenRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := NewServiceFactory().ForToken(context.Background(), " ")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAbout(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/about"))
		assert.Equal(t, "user", r.URL.Query().Get("fields"))
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{"emailAddress": "ada@example.com", "displayName": "Ada"},
		})
	})
	user, err := svc.About(context.Background())
	require.NoError(t, err)
	require.Equal(t, User{Email: "ada@example.com", DisplayName: "Ada"}, user)
}

func TestAboutUnauthenticated(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, http.StatusUnauthorized, "Invalid Credentials")
	})
	_, err := svc.About(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
	var apiErr *googleapi.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Code)
}

func TestGetFolderClassifiesErrors(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/missing"):
			apiError(w, http.StatusNotFound, "File not found: missing.")
		case strings.HasSuffix(r.URL.Path, "/files/private"):
			apiError(w, http.StatusForbidden, "The user does not have sufficient permissions")
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "parent", "name": "Research", "mimeType": FolderMimeType,
			})
		}
	})
	ctx := context.Background()

	f, err := svc.GetFolder(ctx, "parent")
	require.NoError(t, err)
	require.Equal(t, "Research", f.Name)

	_, err = svc.GetFolder(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetFolder(ctx, "private")
	require.ErrorIs(t, err, ErrForbidden)
	require.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateFolderSendsParent(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Checkout study", body["name"])
		assert.Equal(t, FolderMimeType, body["mimeType"])
		assert.Equal(t, []any{"parent"}, body["parents"])
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "proj", "name": "Checkout study",
			"webViewLink": "https://drive.google.com/drive/folders/proj",
		})
	})
	f, err := svc.CreateFolder(context.Background(), "Checkout study", "parent")
	require.NoError(t, err)
	require.Equal(t, "proj", f.ID)
	require.Equal(t, FolderURL("proj"), f.WebViewLink)
}

func TestCreateFileUploadsMedia(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "interview.mp3")
		assert.Contains(t, string(body), "ID3-bytes")
		assert.Contains(t, string(body), "audio/mpeg")
		writeJSON(w, http.StatusOK, map[string]any{"id": "f1", "name": "interview.mp3", "size": "9"})
	})
	f, err := svc.CreateFile(context.Background(), "interview.mp3", "audio", "audio/mpeg", strings.NewReader("ID3-bytes"))
	require.NoError(t, err)
	require.Equal(t, File{ID: "f1", Name: "interview.mp3", Size: 9}, f)
}

func TestClassifyInvalidGrant(t *testing.T) {
	t.Parallel()
	err := classify("verify", errors.New(`oauth2: "invalid_grant" "Token has been expired or revoked."`))
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.NotErrorIs(t, classify("x", errors.New("boom")), ErrUnauthenticated)
}
