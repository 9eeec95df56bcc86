package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/clock/fake"
	"github.com/JakeFAU/resona/internal/progress"
)

type seqIDs struct {
	mu  sync.Mutex
	n   int
	err error
}

func (s *seqIDs) NewID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("op-%d", s.n), nil
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *fake.Clock, *recorder) {
	t.Helper()
	clk := fake.New(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	return NewStore(Config{GracePeriod: 30 * time.Second}, &seqIDs{}, clk, rec), clk, rec
}

func TestStartCreatesStartingRecord(t *testing.T) {
	t.Parallel()
	store, _, events := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, "op-1", rec.ID)
	require.Equal(t, Status{Step: StepStarting, Message: "Initializing...", Progress: 0}, rec.Status)
	require.Nil(t, rec.ExpiresAt)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Status, got.Status)
	require.Equal(t, []progress.Stage{progress.StageOperationStart}, events.stages())
}

func TestStartPropagatesIDError(t *testing.T) {
	t.Parallel()
	clk := fake.New(time.Now())
	store := NewStore(Config{}, &seqIDs{err: errors.New("entropy")}, clk, nil)
	_, err := store.Start(context.Background())
	require.ErrorContains(t, err, "entropy")
	require.Zero(t, store.Len())
}

func TestAdvanceRequiresStrictIncrease(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Advance(ctx, rec.ID, StepAuthenticating, "Verifying access...", 5))
	require.ErrorIs(t, store.Advance(ctx, rec.ID, StepCreatingFiles, "again", 5), ErrNotMonotonic)
	require.ErrorIs(t, store.Advance(ctx, rec.ID, StepCreatingFiles, "back", 3), ErrNotMonotonic)
	require.ErrorIs(t, store.Advance(ctx, rec.ID, StepCreatingFiles, "done?", 100), ErrNotMonotonic)
	require.NoError(t, store.Advance(ctx, rec.ID, StepCreatingFiles, "Creating notebook files...", 20))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StepCreatingFiles, got.Status.Step)
	require.Equal(t, 20, got.Status.Progress)
}

func TestAdvanceRejectsBadSteps(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx)
	require.NoError(t, err)

	for _, step := range []Step{"", "bogus", StepStarting, StepComplete, StepError} {
		require.ErrorIs(t, store.Advance(ctx, rec.ID, step, "", 10), ErrInvalidStep, "step %q", step)
	}
	require.ErrorIs(t, store.Advance(ctx, "missing", StepAuthenticating, "", 10), ErrNotFound)
}

func TestCompleteHoldsRecordForGracePeriod(t *testing.T) {
	t.Parallel()
	store, clk, events := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Advance(ctx, rec.ID, StepUploadingAudio, "Uploading", 50))

	clk.Advance(2 * time.Second)
	require.NoError(t, store.Complete(ctx, rec.ID, "Notebook created successfully!"))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Status.Done())
	require.Equal(t, 100, got.Status.Progress)

	require.ErrorIs(t, store.Advance(ctx, rec.ID, StepUploadingAudio, "late", 99), ErrFinished)
	require.ErrorIs(t, store.Complete(ctx, rec.ID, "twice"), ErrFinished)

	clk.Advance(29 * time.Second)
	_, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = store.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, []progress.Stage{
		progress.StageOperationStart,
		progress.StageStep,
		progress.StageOperationDone,
	}, events.stages())
	require.Equal(t, 2*time.Second, events.events[2].Dur)
}

func TestFailKeepsLastProgress(t *testing.T) {
	t.Parallel()
	store, clk, events := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Advance(ctx, rec.ID, StepCreatingFiles, "Creating notebook files...", 20))

	require.NoError(t, store.Fail(ctx, rec.ID, "drive quota exceeded"))
	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, Status{Step: StepError, Message: "drive quota exceeded", Progress: 20}, got.Status)
	require.True(t, got.Status.Failed())
	require.False(t, got.Status.Done())
	require.ErrorIs(t, store.Fail(ctx, rec.ID, "again"), ErrFinished)

	clk.Advance(DefaultGracePeriod)
	_, err = store.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, events.stages(), progress.StageOperationError)
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	t.Parallel()
	store, clk, _ := newTestStore(t)
	ctx := context.Background()
	done, err := store.Start(ctx)
	require.NoError(t, err)
	running, err := store.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, done.ID, "ok"))

	require.Zero(t, store.Sweep(ctx))
	clk.Advance(31 * time.Second)
	require.Equal(t, 1, store.Sweep(ctx))
	require.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, running.ID)
	require.NoError(t, err)

	store.Delete(ctx, running.ID)
	require.Zero(t, store.Len())
	_, err = store.Get(ctx, running.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentOperationsStayIsolated(t *testing.T) {
	t.Parallel()
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	const ops = 16
	ids := make([]string, ops)
	var wg sync.WaitGroup
	for i := 0; i < ops; i++ {
		rec, err := store.Start(ctx)
		require.NoError(t, err)
		ids[i] = rec.ID
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for p := 1; p < 100; p++ {
				_ = store.Advance(ctx, id, StepUploadingAudio, "Uploading", p)
			}
		}(rec.ID)
	}
	wg.Wait()
	for _, id := range ids {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 99, got.Status.Progress)
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()
	require.True(t, Status{Step: StepUploadingAudio, Progress: 100}.Done())
	require.True(t, Status{Step: StepComplete}.Done())
	require.False(t, Status{Step: StepError, Progress: 40}.Done())
	require.True(t, StepError.Terminal())
	require.False(t, StepUploadingAudio.Terminal())
	require.False(t, Step("nope").Valid())
}
