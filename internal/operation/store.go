package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/progress"
)

// DefaultGracePeriod keeps finished records visible to pollers.
const DefaultGracePeriod = 30 * time.Second

// IDGenerator produces operation IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Config tunes a Store.
type Config struct {
	GracePeriod time.Duration
}

// Store holds progress records keyed by operation ID. It is safe for
// concurrent use; each operation only ever touches its own key.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	ids     IDGenerator
	clock   clock.Clock
	grace   time.Duration
	events  progress.Emitter
}

// NewStore constructs a Store. A nil emitter discards lifecycle events.
func NewStore(cfg Config, ids IDGenerator, clk clock.Clock, events progress.Emitter) *Store {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if events == nil {
		events = progress.Nop{}
	}
	return &Store{
		records: make(map[string]Record),
		ids:     ids,
		clock:   clk,
		grace:   cfg.GracePeriod,
		events:  events,
	}
}

// Start allocates an operation ID with a starting record at 0%.
func (s *Store) Start(_ context.Context) (Record, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("allocate operation id: %w", err)
	}
	now := s.clock.Now()
	rec := Record{
		ID:        id,
		Status:    Status{Step: StepStarting, Message: "Initializing...", Progress: 0},
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	if _, exists := s.records[id]; exists {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("operation %s already exists", id)
	}
	s.records[id] = rec
	s.mu.Unlock()

	s.events.Emit(progress.Event{OperationID: id, TS: now, Stage: progress.StageOperationStart})
	return rec, nil
}

// Advance overwrites the record with a new non-terminal step. progress must be
// strictly greater than the stored value and below 100; use Complete to finish.
func (s *Store) Advance(_ context.Context, id string, step Step, message string, pct int) error {
	if !step.Valid() || step.Terminal() || step == StepStarting {
		return fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}
	if pct >= 100 {
		return fmt.Errorf("%w: %d is reserved for completion", ErrNotMonotonic, pct)
	}
	now := s.clock.Now()
	s.mu.Lock()
	rec, ok := s.records[id]
	switch {
	case !ok || rec.expired(now):
		s.mu.Unlock()
		return ErrNotFound
	case rec.Status.Step.Terminal():
		s.mu.Unlock()
		return ErrFinished
	case pct <= rec.Status.Progress:
		s.mu.Unlock()
		return fmt.Errorf("%w: %d after %d", ErrNotMonotonic, pct, rec.Status.Progress)
	}
	rec.Status = Status{Step: step, Message: message, Progress: pct}
	rec.UpdatedAt = now
	s.records[id] = rec
	s.mu.Unlock()

	s.events.Emit(progress.Event{
		OperationID: id,
		TS:          now,
		Stage:       progress.StageStep,
		Step:        string(step),
		Progress:    pct,
	})
	return nil
}

// Complete marks the operation finished at 100% and starts the grace period.
func (s *Store) Complete(_ context.Context, id, message string) error {
	rec, err := s.finish(id, Status{Step: StepComplete, Message: message, Progress: 100})
	if err != nil {
		return err
	}
	s.events.Emit(progress.Event{
		OperationID: id,
		TS:          rec.UpdatedAt,
		Stage:       progress.StageOperationDone,
		Dur:         rec.UpdatedAt.Sub(rec.StartedAt),
	})
	return nil
}

// Fail leaves a terminal error record at the last reached progress so pollers
// can observe the failure for the grace period.
func (s *Store) Fail(_ context.Context, id, message string) error {
	rec, err := s.finish(id, Status{Step: StepError, Message: message, Progress: -1})
	if err != nil {
		return err
	}
	s.events.Emit(progress.Event{
		OperationID: id,
		TS:          rec.UpdatedAt,
		Stage:       progress.StageOperationError,
		Dur:         rec.UpdatedAt.Sub(rec.StartedAt),
		Note:        message,
	})
	return nil
}

// finish applies a terminal status; a negative Progress keeps the stored value.
func (s *Store) finish(id string, status Status) (Record, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.expired(now) {
		return Record{}, ErrNotFound
	}
	if rec.Status.Step.Terminal() {
		return Record{}, ErrFinished
	}
	if status.Progress < 0 {
		status.Progress = rec.Status.Progress
	}
	expires := now.Add(s.grace)
	rec.Status = status
	rec.UpdatedAt = now
	rec.ExpiresAt = &expires
	s.records[id] = rec
	return rec, nil
}

// Get returns the current record. Expired records report ErrNotFound even
// before the janitor sweeps them.
func (s *Store) Get(_ context.Context, id string) (Record, error) {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.expired(now) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete drops a record immediately.
func (s *Store) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// Sweep removes every expired record and reports how many were dropped.
func (s *Store) Sweep(_ context.Context) int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored records, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
