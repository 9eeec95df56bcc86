package notebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/drive"
	"github.com/JakeFAU/resona/internal/logging"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/storage"
	"github.com/JakeFAU/resona/internal/store"
	"github.com/JakeFAU/resona/internal/summary"
	"github.com/JakeFAU/resona/internal/telemetry"
	"github.com/JakeFAU/resona/internal/uploads"
)

// AudioFolderName is the subfolder that receives the recordings.
const AudioFolderName = "audio_files"

// EventCreated is the notification kind published after a successful run.
const EventCreated = "notebook.created"

// Progress checkpoints recorded after each step.
const (
	progressAuthenticating = 5
	progressCreatingFiles  = 20
	progressAudioFolder    = 40
	progressUploading      = 50
	progressUploadSpan     = 45
)

// Renderer produces the summary document.
type Renderer interface {
	Render(info summary.Info) ([]byte, error)
}

// AudioSource reads previously uploaded audio files by stored name.
type AudioSource interface {
	Open(ctx context.Context, stored string) (io.ReadCloser, storage.ObjectInfo, error)
	Stat(ctx context.Context, stored string) (storage.ObjectInfo, error)
	ListAudio(ctx context.Context) ([]uploads.FileInfo, error)
}

// Publisher announces finished notebooks.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
}

// IDGenerator produces notebook IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Config holds workflow settings.
type Config struct {
	// DefaultParentFolderID is used when a request names no parent folder.
	DefaultParentFolderID string
}

// Deps are the Creator's collaborators. Repository and Publisher are optional.
type Deps struct {
	Drive      drive.Factory
	Summary    Renderer
	Audio      AudioSource
	Operations *operation.Store
	Repository store.Repository
	Publisher  Publisher
	IDs        IDGenerator
	Clock      clock.Clock
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// UploadedFile describes one file created in Drive.
type UploadedFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

// CreateResult is returned after a successful run.
type CreateResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	OperationID     string         `json:"operationId"`
	ProgressID      string         `json:"progressId"`
	NotebookID      string         `json:"notebookId,omitempty"`
	ProjectName     string         `json:"projectName"`
	Date            string         `json:"date"`
	Methodology     Methodology    `json:"methodology"`
	FolderID        string         `json:"folderId"`
	FolderLink      string         `json:"folderLink"`
	AudioFilesCount int            `json:"audioFilesCount"`
	Files           []UploadedFile `json:"files"`
	Errors          []FileError    `json:"errors,omitempty"`
}

// Outcome is delivered by Start once a background run ends.
type Outcome struct {
	Result *CreateResult
	Err    error
}

// Created is the payload published after a successful run.
type Created struct {
	NotebookID      string    `json:"notebookId,omitempty"`
	OperationID     string    `json:"operationId"`
	ProjectName     string    `json:"projectName"`
	FolderID        string    `json:"folderId"`
	FolderLink      string    `json:"folderLink"`
	AudioFilesCount int       `json:"audioFilesCount"`
	FailedFiles     int       `json:"failedFiles"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Creator runs the notebook workflow.
type Creator struct {
	cfg  Config
	deps Deps
	wg   sync.WaitGroup
}

// NewCreator wires a Creator.
func NewCreator(cfg Config, deps Deps) *Creator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer("github.com/JakeFAU/resona/internal/notebook")
	}
	return &Creator{cfg: cfg, deps: deps}
}

// Create validates req and runs the whole workflow before returning. The run
// is detached from ctx cancellation: once started, steps run to completion or
// failure.
func (c *Creator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	tr, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.run(context.WithoutCancel(ctx), tr, req)
}

// Start validates req, allocates the operation record, and runs the workflow
// in the background. The returned channel receives exactly one Outcome.
func (c *Creator) Start(ctx context.Context, req CreateRequest) (string, <-chan Outcome, error) {
	tr, err := c.begin(ctx, req)
	if err != nil {
		return "", nil, err
	}
	done := make(chan Outcome, 1)
	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.run(runCtx, tr, req)
		done <- Outcome{Result: res, Err: err}
	}()
	return tr.ID(), done, nil
}

// Wait blocks until background runs finish or ctx ends.
func (c *Creator) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Creator) begin(ctx context.Context, req CreateRequest) (*operation.Tracker, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rec, err := c.deps.Operations.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start operation: %w", err)
	}
	return c.deps.Operations.Track(rec), nil
}

func (c *Creator) run(ctx context.Context, tr *operation.Tracker, req CreateRequest) (*CreateResult, error) {
	logger := c.deps.Logger.With(logging.OperationID(tr.ID()))
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.create", trace.WithAttributes(
		attribute.String("operation.id", tr.ID()),
		attribute.Int("notebook.audio_files", len(req.AudioFileIDs)),
	))
	defer span.End()

	res, err := c.steps(ctx, tr, req, logger)
	if err != nil {
		var se *StepError
		if !errors.As(err, &se) {
			se = &StepError{Kind: KindUpstream, Message: "Failed to create research notebook", Err: err}
		}
		se.OperationID = tr.ID()
		if failErr := tr.Fail(ctx, se.Message); failErr != nil {
			logger.Warn("failed to record operation failure", zap.Error(failErr))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, se.Message)
		logger.Error("notebook creation failed", zap.String("reason", se.Message), zap.Error(se.Err))
		return nil, se
	}
	if err := tr.Complete(ctx, "Notebook created successfully!"); err != nil {
		logger.Warn("failed to record operation completion", zap.Error(err))
	}
	logger.Info("notebook created",
		zap.String("folder_id", res.FolderID),
		zap.Int("uploaded", res.AudioFilesCount),
		zap.Int("failed", len(res.Errors)))
	return res, nil
}

func (c *Creator) step(ctx context.Context, tr *operation.Tracker, s operation.Step, msg string, pct int) {
	if _, err := tr.Step(ctx, s, msg, pct); err != nil {
		c.deps.Logger.Warn("progress update rejected",
			logging.OperationID(tr.ID()), zap.String("step", string(s)), zap.Error(err))
	}
}

func (c *Creator) steps(ctx context.Context, tr *operation.Tracker, req CreateRequest, logger *zap.Logger) (*CreateResult, error) {
	c.step(ctx, tr, operation.StepAuthenticating, "Verifying authentication...", progressAuthenticating)

	svc, err := c.authenticate(ctx, req.AccessToken, logger)
	if err != nil {
		return nil, err
	}

	parentID := c.cfg.DefaultParentFolderID
	if req.ParentFolderID != "" {
		parentID = drive.ExtractFolderID(req.ParentFolderID)
	}
	if err := c.verifyParent(ctx, svc, parentID, logger); err != nil {
		return nil, err
	}

	project, err := c.createFolder(ctx, svc, req.ProjectName, parentID)
	if err != nil {
		return nil, &StepError{Kind: KindUpstream, Message: "Failed to create project folder: " + err.Error(), Err: err}
	}
	logger.Info("created project folder", zap.String("folder_id", project.ID))
	c.step(ctx, tr, operation.StepCreatingFiles, "Creating project files...", progressCreatingFiles)

	c.uploadSummary(ctx, svc, project.ID, req, logger)
	c.step(ctx, tr, operation.StepCreatingAudioFolder, "Creating audio files folder...", progressAudioFolder)

	audioFolder, err := c.createFolder(ctx, svc, AudioFolderName, project.ID)
	if err != nil {
		return nil, &StepError{Kind: KindUpstream, Message: "Failed to create audio_files folder: " + err.Error(), Err: err}
	}
	n := len(req.AudioFileIDs)
	c.step(ctx, tr, operation.StepUploadingAudio,
		fmt.Sprintf("Preparing to upload %d audio file(s)...", n), progressUploading)

	uploaded, failed := c.uploadAudio(ctx, svc, tr, audioFolder.ID, req.AudioFileIDs, logger)
	if len(uploaded) == 0 {
		return nil, &StepError{
			Kind:    KindNoUploads,
			Message: "Failed to upload any audio files",
			Files:   failed,
		}
	}

	link := project.WebViewLink
	if link == "" {
		link = drive.FolderURL(project.ID)
	}
	res := &CreateResult{
		Success:         true,
		Message:         fmt.Sprintf("Research notebook %q created successfully", req.ProjectName),
		OperationID:     tr.ID(),
		ProgressID:      tr.ID(),
		ProjectName:     req.ProjectName,
		Date:            req.Date,
		Methodology:     req.Methodology,
		FolderID:        project.ID,
		FolderLink:      link,
		AudioFilesCount: len(uploaded),
		Files:           uploaded,
		Errors:          failed,
	}
	c.persist(ctx, res, req, logger)
	c.notify(ctx, res, logger)
	return res, nil
}

func (c *Creator) authenticate(ctx context.Context, token string, logger *zap.Logger) (drive.Service, error) {
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.authenticate")
	defer span.End()

	svc, err := c.deps.Drive.ForToken(ctx, token)
	if err != nil {
		return nil, authError(err)
	}
	user, err := svc.About(ctx)
	if err != nil {
		logger.Warn("authentication verification failed", logging.Token("access_token", token), zap.Error(err))
		return nil, authError(err)
	}
	logger.Info("authenticated", zap.String("user", user.Email))
	return svc, nil
}

func authError(err error) error {
	if errors.Is(err, drive.ErrUnauthenticated) {
		return &StepError{Kind: KindAuth, Message: invalidTok, Hint: renewHint, Tip: expiryTip, Err: err}
	}
	return &StepError{
		Kind:    KindAuth,
		Message: "Authentication failed",
		Hint:    "Please verify your access token is valid and has the correct scope",
		Err:     err,
	}
}

func (c *Creator) verifyParent(ctx context.Context, svc drive.Service, parentID string, logger *zap.Logger) error {
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.verify_parent")
	defer span.End()

	if parentID == "" {
		return &StepError{
			Kind:    KindParentFolder,
			Message: "Parent folder not accessible",
			Hint:    "No parent folder is configured",
			Tip:     "Set drive.parent_folder_id or pass parentFolderId",
		}
	}
	folder, err := svc.GetFolder(ctx, parentID)
	if err != nil {
		return &StepError{
			Kind:    KindParentFolder,
			Message: "Parent folder not accessible",
			Hint:    "Check that the folder ID is correct and you have access",
			Tip:     "Make sure your access token has permission to access this folder",
			Err:     err,
		}
	}
	logger.Info("parent folder verified", zap.String("folder", folder.Name))
	return nil
}

func (c *Creator) createFolder(ctx context.Context, svc drive.Service, name, parentID string) (drive.File, error) {
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.create_folder", trace.WithAttributes(attribute.String("folder.name", name)))
	defer span.End()
	return svc.CreateFolder(ctx, name, parentID)
}

// uploadSummary is best effort: a failure is logged and the workflow goes on.
func (c *Creator) uploadSummary(ctx context.Context, svc drive.Service, folderID string, req CreateRequest, logger *zap.Logger) {
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.upload_summary")
	defer span.End()

	doc, err := c.deps.Summary.Render(summary.Info{
		ProjectName:    req.ProjectName,
		Date:           req.Date,
		Researchers:    req.Researchers,
		UserCohorts:    req.UserCohorts,
		Methodology:    string(req.Methodology),
		AudioFileCount: len(req.AudioFileIDs),
	})
	if err != nil {
		logger.Warn("continuing without summary document", zap.Error(err))
		return
	}
	f, err := svc.CreateFile(ctx, summary.FileName, folderID, summary.MimeType, bytes.NewReader(doc))
	if err != nil {
		span.RecordError(err)
		logger.Warn("continuing without summary document", zap.Error(err))
		return
	}
	logger.Info("uploaded summary document", zap.String("file_id", f.ID), zap.Int("bytes", len(doc)))
}

func (c *Creator) uploadAudio(
	ctx context.Context,
	svc drive.Service,
	tr *operation.Tracker,
	folderID string,
	stored []string,
	logger *zap.Logger,
) ([]UploadedFile, []FileError) {
	n := len(stored)
	uploaded := make([]UploadedFile, 0, n)
	var failed []FileError
	for i, name := range stored {
		original := uploads.OriginalName(name)
		c.step(ctx, tr, operation.StepUploadingAudio,
			fmt.Sprintf("Uploading %d/%d: %s", i+1, n, original),
			progressUploading+i*progressUploadSpan/n)
		f, size, err := c.uploadOne(ctx, svc, folderID, name, original)
		if err != nil {
			logger.Warn("audio upload failed", zap.String("file", name), zap.Error(err))
			failed = append(failed, FileError{File: original, Error: err.Error()})
			tr.FileFailed(original, err)
		} else {
			uploaded = append(uploaded, f)
			tr.FileUploaded(original, size)
		}
	}
	return uploaded, failed
}

func (c *Creator) uploadOne(ctx context.Context, svc drive.Service, folderID, stored, original string) (UploadedFile, int64, error) {
	ctx, span := c.deps.Tracer.Start(ctx, "notebook.upload_audio", trace.WithAttributes(attribute.String("file.name", original)))
	defer span.End()

	rc, info, err := c.deps.Audio.Open(ctx, stored)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			err = fmt.Errorf("file not found: %s", stored)
		}
		span.RecordError(err)
		return UploadedFile{}, 0, err
	}
	defer rc.Close()

	f, err := svc.CreateFile(ctx, original, folderID, drive.MimeTypeFor(original), rc)
	if err != nil {
		span.RecordError(err)
		return UploadedFile{}, 0, err
	}
	size := f.Size
	if size == 0 {
		size = info.Size
	}
	return UploadedFile{ID: f.ID, Name: f.Name, Size: size, WebViewLink: f.WebViewLink}, size, nil
}

func (c *Creator) persist(ctx context.Context, res *CreateResult, req CreateRequest, logger *zap.Logger) {
	if c.deps.Repository == nil || c.deps.IDs == nil {
		return
	}
	id, err := c.deps.IDs.NewID()
	if err != nil {
		logger.Warn("notebook not saved", zap.Error(err))
		return
	}
	now := c.deps.Clock.Now().UTC()
	nb := store.Notebook{
		ID:             id,
		ProjectName:    req.ProjectName,
		Date:           req.Date,
		Researchers:    req.Researchers,
		UserCohorts:    req.UserCohorts,
		Methodology:    string(req.Methodology),
		AudioFileCount: res.AudioFilesCount,
		DriveFolderID:  res.FolderID,
		DriveFolderURL: res.FolderLink,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.deps.Repository.Create(ctx, nb); err != nil {
		logger.Warn("notebook not saved", zap.Error(err))
		return
	}
	res.NotebookID = id
}

func (c *Creator) notify(ctx context.Context, res *CreateResult, logger *zap.Logger) {
	if c.deps.Publisher == nil {
		return
	}
	var now time.Time
	if c.deps.Clock != nil {
		now = c.deps.Clock.Now().UTC()
	}
	msgID, err := c.deps.Publisher.Publish(ctx, EventCreated, Created{
		NotebookID:      res.NotebookID,
		OperationID:     res.OperationID,
		ProjectName:     res.ProjectName,
		FolderID:        res.FolderID,
		FolderLink:      res.FolderLink,
		AudioFilesCount: res.AudioFilesCount,
		FailedFiles:     len(res.Errors),
		CreatedAt:       now,
	})
	if err != nil {
		logger.Warn("notebook notification not published", zap.Error(err))
		return
	}
	logger.Debug("notebook notification published", zap.String("message_id", msgID))
}
