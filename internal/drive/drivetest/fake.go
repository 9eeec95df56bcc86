// Package drivetest provides an in-memory drive.Service for tests.
package drivetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/resona/internal/drive"
)

// Call records one mutating Drive request.
type Call struct {
	Op       string
	Name     string
	ParentID string
	MimeType string
	Body     []byte
}

// Fake is a drive.Service and drive.Factory backed by maps. Set the *Err
// fields or FailFiles to inject failures.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]drive.File
	calls   []Call
	tokens  []string

	// Token, when set, is the only access token ForToken accepts.
	Token           string
	AboutErr        error
	CreateFolderErr map[string]error
	// FailFiles maps file names to upload errors.
	FailFiles map[string]error
}

var (
	_ drive.Service = (*Fake)(nil)
	_ drive.Factory = (*Fake)(nil)
)

// New returns a Fake with the given folder IDs pre-created.
func New(folderIDs ...string) *Fake {
	f := &Fake{
		folders:         make(map[string]drive.File),
		CreateFolderErr: make(map[string]error),
		FailFiles:       make(map[string]error),
	}
	for _, id := range folderIDs {
		f.folders[id] = drive.File{ID: id, Name: id, MimeType: drive.FolderMimeType, WebViewLink: drive.FolderURL(id)}
	}
	return f
}

// ForToken implements drive.Factory.
func (f *Fake) ForToken(_ context.Context, token string) (drive.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if token == "" || (f.Token != "" && token != f.Token) {
		return nil, drive.ErrUnauthenticated
	}
	return f, nil
}

// About implements drive.Service.
func (f *Fake) About(context.Context) (drive.User, error) {
	if f.AboutErr != nil {
		return drive.User{}, f.AboutErr
	}
	return drive.User{Email: "researcher@example.com", DisplayName: "Researcher"}, nil
}

// GetFolder implements drive.Service.
func (f *Fake) GetFolder(_ context.Context, id string) (drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[id]
	if !ok {
		return drive.File{}, fmt.Errorf("get folder %s: %w", id, drive.ErrNotFound)
	}
	return folder, nil
}

// CreateFolder implements drive.Service.
func (f *Fake) CreateFolder(_ context.Context, name, parentID string) (drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "folder", Name: name, ParentID: parentID, MimeType: drive.FolderMimeType})
	if err := f.CreateFolderErr[name]; err != nil {
		return drive.File{}, err
	}
	f.nextID++
	id := fmt.Sprintf("folder-%d", f.nextID)
	folder := drive.File{ID: id, Name: name, MimeType: drive.FolderMimeType, WebViewLink: drive.FolderURL(id)}
	f.folders[id] = folder
	return folder, nil
}

// CreateFile implements drive.Service.
func (f *Fake) CreateFile(_ context.Context, name, parentID, mimeType string, content io.Reader) (drive.File, error) {
	body, err := io.ReadAll(content)
	if err != nil {
		return drive.File{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "file", Name: name, ParentID: parentID, MimeType: mimeType, Body: body})
	if err := f.FailFiles[name]; err != nil {
		return drive.File{}, err
	}
	f.nextID++
	id := fmt.Sprintf("file-%d", f.nextID)
	return drive.File{
		ID:          id,
		Name:        name,
		MimeType:    mimeType,
		Size:        int64(len(body)),
		WebViewLink: "https://drive.google.com/file/d/" + id + "/view",
	}, nil
}

// Calls returns the mutating requests in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Tokens returns every token passed to ForToken.
func (f *Fake) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}
