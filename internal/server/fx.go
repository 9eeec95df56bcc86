// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/JakeFAU/resona/internal/api"
	"github.com/JakeFAU/resona/internal/chat"
	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/clock/system"
	"github.com/JakeFAU/resona/internal/config"
	"github.com/JakeFAU/resona/internal/drive"
	"github.com/JakeFAU/resona/internal/id/uuid"
	"github.com/JakeFAU/resona/internal/janitor"
	"github.com/JakeFAU/resona/internal/logging"
	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/policy/ratelimit"
	"github.com/JakeFAU/resona/internal/progress"
	progresssinks "github.com/JakeFAU/resona/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/resona/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/resona/internal/publisher/pubsub"
	blobstorage "github.com/JakeFAU/resona/internal/storage"
	gcsstorage "github.com/JakeFAU/resona/internal/storage/gcs"
	localstorage "github.com/JakeFAU/resona/internal/storage/local"
	memorystorage "github.com/JakeFAU/resona/internal/storage/memory"
	pgstore "github.com/JakeFAU/resona/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/resona/internal/storage/sqlite"
	"github.com/JakeFAU/resona/internal/store"
	"github.com/JakeFAU/resona/internal/summary"
	"github.com/JakeFAU/resona/internal/telemetry"
	"github.com/JakeFAU/resona/internal/uploads"
)

// pinger is implemented by repositories that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	clock       clock.Timer
	apiServer   *api.Server
	creator     *notebook.Creator
	operations  *operation.Store
	uploads     *uploads.Service
	janitor     *janitor.Janitor
	progressHub *progress.Hub

	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	storage      *storage.Client
	repo         store.Repository
	closeRepo    func() error

	tracerShutdown func(context.Context) error

	// overrides applied by Options
	driveFactory drive.Factory
	registerer   prometheus.Registerer
	publisher    notebook.Publisher

	listener net.Listener
}

// Option customizes Build. Tests use them to swap external services.
type Option func(*App)

// WithLogger skips logger construction from config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithDriveFactory replaces the Google Drive API client factory.
func WithDriveFactory(f drive.Factory) Option {
	return func(a *App) { a.driveFactory = f }
}

// WithClock replaces the system clock.
func WithClock(c clock.Timer) Option {
	return func(a *App) { a.clock = c }
}

// WithRegisterer sets the registry the progress collectors register with.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithPublisher replaces the notification publisher.
func WithPublisher(p notebook.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithListener serves on an existing listener instead of server.port.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	type sanitizedConfig struct {
		ServerPort      int     `json:"server_port"`
		UploadsBackend  string  `json:"uploads_backend"`
		NotebooksDriver string  `json:"notebooks_driver"`
		PubSubEnabled   bool    `json:"pubsub_enabled"`
		ParentFolderSet bool    `json:"parent_folder_set"`
		DriveMaxRPS     float64 `json:"drive_max_rps"`
		APIKeyEnabled   bool    `json:"api_key_enabled"`
		TracingEnabled  bool    `json:"tracing_enabled"`
		MetricsEnabled  bool    `json:"metrics_enabled"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort:      cfg.Server.Port,
		UploadsBackend:  cfg.Uploads.Backend,
		NotebooksDriver: cfg.Notebooks.Driver,
		PubSubEnabled:   cfg.PubSub.Enabled(),
		ParentFolderSet: cfg.Drive.ParentFolderID != "",
		DriveMaxRPS:     cfg.Drive.MaxRPS,
		APIKeyEnabled:   cfg.Auth.Enabled,
		TracingEnabled:  cfg.Tracing.Enabled,
		MetricsEnabled:  cfg.Metrics.Enabled,
	}))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the janitor until ctx is canceled or a signal
// arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.janitor.Run(gctx)
	})
	g.Go(func() error {
		var err error
		if a.listener != nil {
			a.logger.Info("http server started", zap.String("addr", a.listener.Addr().String()))
			err = srv.Serve(a.listener)
		} else {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

// Close waits for background notebook runs, then releases infrastructure.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.creator != nil {
		if err := a.creator.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for notebook runs: %w", err))
		}
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.closeRepo != nil {
		if err := a.closeRepo(); err != nil {
			a.logger.Warn("notebook repository close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	probe := &App{}
	for _, opt := range opts {
		opt(probe)
	}
	logger := probe.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.clock == nil {
		app.clock = system.New()
	}
	if app.registerer == nil {
		app.registerer = prometheus.DefaultRegisterer
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	app.logger.Info("building application dependencies")
	ids := uuid.New()

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	app.uploads = uploads.NewService(blobStore, ids, app.clock, uploads.Config{
		MaxFileBytes: cfg.Uploads.MaxFileBytes,
		MaxFiles:     cfg.Uploads.MaxFiles,
	}, logger.Named("uploads"))

	if err = setupRepository(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	events, err := setupProgress(app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.operations = operation.NewStore(operation.Config{GracePeriod: cfg.Progress.GracePeriod}, ids, app.clock, events)

	driveFactory := app.driveFactory
	if driveFactory == nil {
		var driveOpts []option.ClientOption
		if cfg.Drive.Endpoint != "" {
			driveOpts = append(driveOpts, option.WithEndpoint(cfg.Drive.Endpoint))
		}
		driveFactory = drive.NewServiceFactory(driveOpts...)
	}
	var driveAPI drive.Factory = driveFactory
	if cfg.Drive.MaxRPS > 0 {
		driveAPI = ratelimit.New(driveFactory, app.clock, ratelimit.Config{RPS: cfg.Drive.MaxRPS, Burst: cfg.Drive.Burst})
	}

	app.creator = notebook.NewCreator(notebook.Config{DefaultParentFolderID: cfg.Drive.ParentFolderID}, notebook.Deps{
		Drive:      driveAPI,
		Summary:    summary.NewRenderer(summary.WithClock(app.clock.Now)),
		Audio:      app.uploads,
		Operations: app.operations,
		Repository: app.repo,
		Publisher:  publisher,
		IDs:        ids,
		Clock:      app.clock,
		Logger:     logger.Named("notebook"),
	})

	var purger janitor.Purger
	if cfg.Uploads.Retention > 0 {
		purger = app.uploads
	}
	app.janitor, err = janitor.New(janitor.Config{
		SweepInterval: cfg.Progress.SweepInterval,
		Retention:     cfg.Uploads.Retention,
	}, app.operations, purger, logger.Named("janitor"))
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("janitor init failed: %w", err)
	}

	app.apiServer = api.NewServer(api.Deps{
		Uploads:    app.uploads,
		Notebooks:  app.creator,
		Progress:   app.operations,
		Chat:       chat.NewHistory(ids, app.clock, 0),
		Repository: app.repo,
		IDs:        ids,
		Clock:      app.clock,
		Ready:      app.ready,
	}, *cfg, logger.Named("api"))

	return app, nil
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func setupStorage(ctx context.Context, app *App) (blobstorage.BlobStore, error) {
	var (
		blobStore blobstorage.BlobStore
		err       error
	)
	switch app.cfg.Uploads.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS upload backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Uploads.GCSBucket,
			Prefix: app.cfg.Uploads.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS upload backend", zap.String("bucket", app.cfg.Uploads.GCSBucket))
	case config.BackendLocal:
		app.logger.Info("using local upload backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Uploads.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local upload backend", zap.String("path", app.cfg.Uploads.Dir))
	default:
		app.logger.Info("using in-memory upload backend")
		blobStore = memorystorage.NewBlobStore().WithClock(app.clock.Now)
	}
	return blobStore, nil
}

func setupRepository(ctx context.Context, app *App) error {
	switch app.cfg.Notebooks.Driver {
	case config.BackendPostgres:
		repo, err := pgstore.New(ctx, pgstore.Config{
			DSN:             app.cfg.Notebooks.DSN,
			MaxConns:        app.cfg.Notebooks.MaxConns,
			MinConns:        app.cfg.Notebooks.MinConns,
			MaxConnLifetime: app.cfg.Notebooks.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres notebook store init failed: %w", err)
		}
		app.repo = repo
		app.closeRepo = func() error {
			repo.Close()
			return nil
		}
		app.logger.Info("notebook repository initialized", zap.String("driver", "postgres"))
	case config.BackendSQLite:
		repo, err := sqlitestore.Open(ctx, app.cfg.Notebooks.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite notebook store init failed: %w", err)
		}
		app.repo = repo
		app.closeRepo = repo.Close
		app.logger.Info("notebook repository initialized",
			zap.String("driver", "sqlite"),
			zap.String("path", app.cfg.Notebooks.SQLitePath))
	default:
		app.logger.Warn("using in-memory notebook repository; saved notebooks are lost on restart")
		app.repo = memorystorage.NewNotebookRepo()
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) (notebook.Publisher, error) {
	if app.publisher != nil {
		return app.publisher, nil
	}
	if !app.cfg.PubSub.Enabled() {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.gcpPublisher, err = gcppublisher.Open(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName, app.pubsubClient)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.gcpPublisher, nil
}

func setupProgress(app *App) (progress.Emitter, error) {
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
	}
	if app.cfg.Metrics.Enabled {
		promSink, err := progresssinks.NewPrometheusSink(app.registerer)
		if err != nil {
			return nil, fmt.Errorf("progress metrics init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("added progress metrics sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Events.BufferSize,
		MaxBatchEvents: app.cfg.Events.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Events.MaxBatchWait,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}
