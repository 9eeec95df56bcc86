package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRouteLabel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"root", "/", "/"},
		{"param", "/api/notebook/progress/{progressId}", "/api/notebook/progress/{progressId}"},
		{"trailing slash", "/api/files/", "/api/files"},
		{"empty", "", "unknown"},
		{"blank", "  ", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, RouteLabel(tc.input))
		})
	}
}

func TestObserveUploadAndJanitor(t *testing.T) {
	Init()
	beforeStored := testutil.ToFloat64(uploadsTotal.WithLabelValues("stored"))
	beforeBytes := testutil.ToFloat64(uploadBytesTotal)

	ObserveUpload("stored", 2048)
	ObserveUpload("not_audio", 0)
	ObserveJanitor("progress", 0)
	ObserveJanitor("uploads", 3)
	ObserveChatMessage("system")

	require.InDelta(t, beforeStored+1, testutil.ToFloat64(uploadsTotal.WithLabelValues("stored")), 0)
	require.InDelta(t, beforeBytes+2048, testutil.ToFloat64(uploadBytesTotal), 0)
	require.GreaterOrEqual(t, testutil.ToFloat64(uploadsTotal.WithLabelValues("not_audio")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(janitorRemovedTotal.WithLabelValues("uploads")), float64(3))
	require.GreaterOrEqual(t, testutil.ToFloat64(chatMessagesTotal.WithLabelValues("system")), float64(1))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/files/{filename}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	before404 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/api/health", "/api/files/a.mp3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, before404+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
