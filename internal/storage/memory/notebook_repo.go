package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/resona/internal/store"
)

// NotebookRepo implements store.Repository in memory.
type NotebookRepo struct {
	mu        sync.RWMutex
	notebooks map[string]store.Notebook
	now       func() time.Time
}

var _ store.Repository = (*NotebookRepo)(nil)

// NewNotebookRepo constructs an empty repository.
func NewNotebookRepo() *NotebookRepo {
	return &NotebookRepo{
		notebooks: make(map[string]store.Notebook),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new notebook.
func (r *NotebookRepo) Create(_ context.Context, nb store.Notebook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.notebooks[nb.ID]; exists {
		return fmt.Errorf("notebook %s already exists", nb.ID)
	}
	r.notebooks[nb.ID] = clone(nb)
	return nil
}

// Get returns a copy of the notebook.
func (r *NotebookRepo) Get(_ context.Context, id string) (store.Notebook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nb, ok := r.notebooks[id]
	if !ok {
		return store.Notebook{}, store.ErrNotFound
	}
	return clone(nb), nil
}

// List returns notebooks newest first.
func (r *NotebookRepo) List(_ context.Context, limit, offset int) ([]store.Notebook, error) {
	r.mu.RLock()
	all := make([]store.Notebook, 0, len(r.notebooks))
	for _, nb := range r.notebooks {
		all = append(all, clone(nb))
	}
	r.mu.RUnlock()
	store.SortNewestFirst(all)
	return store.Page(all, limit, offset), nil
}

// AddNote appends a note.
func (r *NotebookRepo) AddNote(_ context.Context, notebookID string, kind store.NoteKind, note store.Note) error {
	return r.mutate(notebookID, kind, func(notes *[]store.Note) error {
		*notes = append(*notes, note)
		return nil
	})
}

// UpdateNote replaces a note's text.
func (r *NotebookRepo) UpdateNote(_ context.Context, notebookID string, kind store.NoteKind, noteID, text string) error {
	return r.mutate(notebookID, kind, func(notes *[]store.Note) error {
		for i := range *notes {
			if (*notes)[i].ID == noteID {
				(*notes)[i].Text = text
				return nil
			}
		}
		return store.ErrNotFound
	})
}

// DeleteNote removes a note.
func (r *NotebookRepo) DeleteNote(_ context.Context, notebookID string, kind store.NoteKind, noteID string) error {
	return r.mutate(notebookID, kind, func(notes *[]store.Note) error {
		for i := range *notes {
			if (*notes)[i].ID == noteID {
				*notes = append((*notes)[:i], (*notes)[i+1:]...)
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (r *NotebookRepo) mutate(id string, kind store.NoteKind, fn func(*[]store.Note) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	nb, ok := r.notebooks[id]
	if !ok {
		return store.ErrNotFound
	}
	notes := nb.Notes(kind)
	if notes == nil {
		return fmt.Errorf("%w: %q", store.ErrInvalidNoteKind, kind)
	}
	if err := fn(notes); err != nil {
		return err
	}
	nb.UpdatedAt = r.now()
	r.notebooks[id] = nb
	return nil
}

func clone(nb store.Notebook) store.Notebook {
	nb.Researchers = append([]string(nil), nb.Researchers...)
	nb.Insights = append([]store.Note(nil), nb.Insights...)
	nb.Opportunities = append([]store.Note(nil), nb.Opportunities...)
	nb.PainPoints = append([]store.Note(nil), nb.PainPoints...)
	return nb
}
