package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound signals that the requested notebook or note does not exist.
	ErrNotFound = errors.New("notebook not found")
	// ErrInvalidNoteKind rejects note kinds other than the three card lists.
	ErrInvalidNoteKind = errors.New("invalid note kind")
)

// NoteKind selects one of the three note lists on a notebook.
type NoteKind string

// Note lists kept per notebook.
const (
	NoteInsight     NoteKind = "insights"
	NoteOpportunity NoteKind = "opportunities"
	NotePainPoint   NoteKind = "pain_points"
)

// ParseNoteKind accepts the list names used in URLs.
func ParseNoteKind(s string) (NoteKind, error) {
	switch NoteKind(s) {
	case NoteInsight, NoteOpportunity, NotePainPoint:
		return NoteKind(s), nil
	case "painPoints", "pain-points":
		return NotePainPoint, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNoteKind, s)
	}
}

// Note is a single observation captured during a session.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Notebook is the persisted record of a created research notebook.
type Notebook struct {
	ID             string    `json:"id"`
	ProjectName    string    `json:"projectName"`
	Date           string    `json:"date"`
	Researchers    []string  `json:"researchers"`
	UserCohorts    string    `json:"userCohorts"`
	Methodology    string    `json:"methodology"`
	AudioFileCount int       `json:"audioFileCount"`
	DriveFolderID  string    `json:"driveFolderId"`
	DriveFolderURL string    `json:"driveFolderUrl"`
	Insights       []Note    `json:"insights"`
	Opportunities  []Note    `json:"opportunities"`
	PainPoints     []Note    `json:"painPoints"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Notes returns a pointer to the list for kind, or nil for an unknown kind.
func (n *Notebook) Notes(kind NoteKind) *[]Note {
	switch kind {
	case NoteInsight:
		return &n.Insights
	case NoteOpportunity:
		return &n.Opportunities
	case NotePainPoint:
		return &n.PainPoints
	default:
		return nil
	}
}

// Repository persists notebooks and their notes.
type Repository interface {
	// Create inserts a new notebook. The ID must already be set.
	Create(ctx context.Context, nb Notebook) error
	// Get loads a notebook with its notes or returns ErrNotFound.
	Get(ctx context.Context, id string) (Notebook, error)
	// List returns notebooks newest first.
	List(ctx context.Context, limit, offset int) ([]Notebook, error)
	// AddNote appends a note to the list for kind.
	AddNote(ctx context.Context, notebookID string, kind NoteKind, note Note) error
	// UpdateNote replaces the text of an existing note.
	UpdateNote(ctx context.Context, notebookID string, kind NoteKind, noteID, text string) error
	// DeleteNote removes a note.
	DeleteNote(ctx context.Context, notebookID string, kind NoteKind, noteID string) error
}

// SortNewestFirst orders notebooks by CreatedAt descending, breaking ties by ID.
func SortNewestFirst(nbs []Notebook) {
	sort.SliceStable(nbs, func(i, j int) bool {
		if nbs[i].CreatedAt.Equal(nbs[j].CreatedAt) {
			return nbs[i].ID > nbs[j].ID
		}
		return nbs[i].CreatedAt.After(nbs[j].CreatedAt)
	})
}

// Page applies limit/offset to an already sorted slice. A non-positive limit
// returns everything after offset.
func Page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
