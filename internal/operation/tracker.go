package operation

import (
	"context"
	"errors"

	"github.com/JakeFAU/resona/internal/progress"
)

// Tracker binds a Store to one operation. It drops progress updates that
// would not move the record forward instead of failing the operation.
type Tracker struct {
	store *Store
	id    string
	last  int
}

// Track returns a Tracker for a record created by Start.
func (s *Store) Track(rec Record) *Tracker {
	return &Tracker{store: s, id: rec.ID, last: rec.Status.Progress}
}

// ID returns the tracked operation ID.
func (t *Tracker) ID() string { return t.id }

// Step records a non-terminal step. It reports whether the record changed.
func (t *Tracker) Step(ctx context.Context, step Step, message string, pct int) (bool, error) {
	if pct <= t.last {
		return false, nil
	}
	err := t.store.Advance(ctx, t.id, step, message, pct)
	switch {
	case err == nil:
		t.last = pct
		return true, nil
	case errors.Is(err, ErrNotMonotonic):
		return false, nil
	default:
		return false, err
	}
}

// FileUploaded emits a per-file success event.
func (t *Tracker) FileUploaded(name string, size int64) {
	t.store.events.Emit(progress.Event{
		OperationID: t.id,
		TS:          t.store.clock.Now(),
		Stage:       progress.StageFileUploaded,
		File:        name,
		Bytes:       size,
	})
}

// FileFailed emits a per-file failure event.
func (t *Tracker) FileFailed(name string, cause error) {
	evt := progress.Event{
		OperationID: t.id,
		TS:          t.store.clock.Now(),
		Stage:       progress.StageFileFailed,
		File:        name,
	}
	if cause != nil {
		evt.Note = cause.Error()
	}
	t.store.events.Emit(evt)
}

// Complete finishes the operation successfully.
func (t *Tracker) Complete(ctx context.Context, message string) error {
	return t.store.Complete(ctx, t.id, message)
}

// Fail finishes the operation with a user-facing error message.
func (t *Tracker) Fail(ctx context.Context, message string) error {
	return t.store.Fail(ctx, t.id, message)
}
