package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/chat"
	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/config"
	"github.com/JakeFAU/resona/internal/metrics"
	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/storage"
	"github.com/JakeFAU/resona/internal/store"
	"github.com/JakeFAU/resona/internal/uploads"
)

// Version is reported by the service index.
const Version = "1.0.0"

// Uploads stages audio files.
type Uploads interface {
	Limits() uploads.Config
	Save(ctx context.Context, filename, mimeType string, r io.Reader) (uploads.Upload, error)
	Open(ctx context.Context, stored string) (io.ReadCloser, storage.ObjectInfo, error)
	List(ctx context.Context) ([]uploads.FileInfo, error)
	Delete(ctx context.Context, stored string) error
}

// Notebooks runs the Drive workflows.
type Notebooks interface {
	Create(ctx context.Context, req notebook.CreateRequest) (*notebook.CreateResult, error)
	Start(ctx context.Context, req notebook.CreateRequest) (string, <-chan notebook.Outcome, error)
	UploadToFolder(ctx context.Context, req notebook.FolderUploadRequest) (*notebook.FolderUploadResult, error)
}

// ProgressReader looks up operation records.
type ProgressReader interface {
	Get(ctx context.Context, id string) (operation.Record, error)
}

// IDGenerator produces note IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the server's collaborators. Repository may be nil, in which case
// the saved-notebook routes answer 503.
type Deps struct {
	Uploads    Uploads
	Notebooks  Notebooks
	Progress   ProgressReader
	Chat       *chat.History
	Repository store.Repository
	IDs        IDGenerator
	Clock      clock.Clock
	// Ready reports downstream readiness for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the domain services.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(corsMiddleware(cfg.Server.Origins()))
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/", s.index)
		r.Route("/api", func(r chi.Router) {
			r.Get("/health", s.health)

			r.Get("/chat", s.listChat)
			r.Post("/chat", s.postChat)

			r.Post("/upload", s.upload)
			r.Get("/files", s.listFiles)
			r.Get("/files/{filename}", s.getFile)
			r.Delete("/files/{filename}", s.deleteFile)

			r.Post("/drive/upload", s.driveUpload)

			r.Post("/notebook/create", s.createNotebook)
			r.Get("/notebook/progress/{progressId}", s.getProgress)

			r.Route("/notebooks", func(r chi.Router) {
				r.Get("/", s.listNotebooks)
				r.Route("/{notebookId}", func(r chi.Router) {
					r.Get("/", s.getNotebook)
					r.Post("/notes/{kind}", s.addNote)
					r.Put("/notes/{kind}/{noteId}", s.updateNote)
					r.Delete("/notes/{kind}/{noteId}", s.deleteNote)
				})
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Resona Audio Chat API Server",
		"status":  "running",
		"version": Version,
		"endpoints": map[string]string{
			"health":         "/api/health",
			"chat":           "/api/chat",
			"upload":         "/api/upload",
			"driveUpload":    "/api/drive/upload",
			"files":          "/api/files",
			"createNotebook": "/api/notebook/create",
			"progress":       "/api/notebook/progress/{progressId}",
			"notebooks":      "/api/notebooks",
		},
		"docs": "Visit /api/health for server status",
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   "Server is running",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) now() time.Time {
	if s.deps.Clock != nil {
		return s.deps.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("request_id", requestID(r.Context())))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

// corsMiddleware answers preflights and echoes allowed origins. An empty
// allow-list permits any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[strings.TrimRight(origin, "/")]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Prefer, X-API-Key, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Location, Preference-Applied")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
