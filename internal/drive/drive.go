package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FolderMimeType is the Drive MIME type for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

var (
	// ErrUnauthenticated means the access token is invalid or expired.
	ErrUnauthenticated = errors.New("invalid or expired access token")
	// ErrForbidden means the token lacks access to the resource.
	ErrForbidden = errors.New("access denied")
	// ErrNotFound means the file or folder does not exist or is not visible.
	ErrNotFound = errors.New("drive item not found")
)

// User identifies the owner of an access token.
type User struct {
	Email       string
	DisplayName string
}

// File is the subset of Drive file metadata the service reports.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

// Service is the Drive surface used by the notebook workflow.
type Service interface {
	About(ctx context.Context) (User, error)
	GetFolder(ctx context.Context, id string) (File, error)
	CreateFolder(ctx context.Context, name, parentID string) (File, error)
	CreateFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (File, error)
}

// Factory builds a Service for one access token.
type Factory interface {
	ForToken(ctx context.Context, accessToken string) (Service, error)
}

// ServiceFactory builds API-backed services. Extra client options (endpoint,
// HTTP client) are appended after the token source.
type ServiceFactory struct {
	opts []option.ClientOption
}

// NewServiceFactory returns a Factory backed by the Drive v3 API.
func NewServiceFactory(opts ...option.ClientOption) *ServiceFactory {
	return &ServiceFactory{opts: opts}
}

// ForToken implements Factory.
func (f *ServiceFactory) ForToken(ctx context.Context, accessToken string) (Service, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrUnauthenticated
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, f.opts...)
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize google drive service: %w", err)
	}
	return &apiService{files: svc.Files, about: svc.About}, nil
}

type apiService struct {
	files *drivev3.FilesService
	about *drivev3.AboutService
}

func (s *apiService) About(ctx context.Context) (User, error) {
	about, err := s.about.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return User{}, classify("verify authentication", err)
	}
	if about.User == nil {
		return User{}, nil
	}
	return User{Email: about.User.EmailAddress, DisplayName: about.User.DisplayName}, nil
}

func (s *apiService) GetFolder(ctx context.Context, id string) (File, error) {
	f, err := s.files.Get(id).
		Fields("id,name,mimeType,webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, classify("get folder "+id, err)
	}
	return fromAPI(f), nil
}

func (s *apiService) CreateFolder(ctx context.Context, name, parentID string) (File, error) {
	meta := &drivev3.File{Name: name, MimeType: FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := s.files.Create(meta).
		Fields("id,name,mimeType,webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, classify("create folder "+name, err)
	}
	return fromAPI(f), nil
}

func (s *apiService) CreateFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (File, error) {
	meta := &drivev3.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := s.files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Fields("id,name,mimeType,size,webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, classify("upload "+name, err)
	}
	return fromAPI(f), nil
}

func fromAPI(f *drivev3.File) File {
	return File{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
	}
}

// classify tags err with the matching sentinel while keeping the API error
// reachable through errors.As.
func classify(op string, err error) error {
	var sentinel error
	var apiErr *googleapi.Error
	var tokenErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusUnauthorized, strings.Contains(apiErr.Message, "Invalid Credentials"):
			sentinel = ErrUnauthenticated
		case apiErr.Code == http.StatusForbidden:
			sentinel = ErrForbidden
		case apiErr.Code == http.StatusNotFound:
			sentinel = ErrNotFound
		}
	case errors.As(err, &tokenErr), strings.Contains(err.Error(), "invalid_grant"):
		sentinel = ErrUnauthenticated
	}
	if sentinel == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}

// FolderURL returns the browser link for a folder ID.
func FolderURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}
