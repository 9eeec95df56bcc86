package janitor

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/clock/fake"
	"github.com/JakeFAU/resona/internal/metrics"
	"github.com/JakeFAU/resona/internal/operation"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return "op-" + strconv.FormatInt(s.n.Add(1), 10), nil
}

type fakePurger struct {
	calls atomic.Int32
	age   time.Duration
	n     int
	err   error
}

func (p *fakePurger) PurgeOlderThan(_ context.Context, age time.Duration) (int, error) {
	p.calls.Add(1)
	p.age = age
	return p.n, p.err
}

func TestSweepProgressRemovesExpiredRecords(t *testing.T) {
	metrics.Init()
	clk := fake.New(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ops := operation.NewStore(operation.Config{GracePeriod: 30 * time.Second}, &seqIDs{}, clk, nil)
	ctx := context.Background()

	done, err := ops.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, ops.Complete(ctx, done.ID, "ok"))
	_, err = ops.Start(ctx)
	require.NoError(t, err)

	j, err := New(Config{SweepInterval: time.Second}, ops, nil, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, j.Jobs())

	require.Zero(t, j.SweepProgress(ctx))
	clk.Advance(31 * time.Second)
	require.Equal(t, 1, j.SweepProgress(ctx))
	require.Equal(t, 1, ops.Len())
}

func TestPurgeUploadsHonorsRetention(t *testing.T) {
	metrics.Init()
	purger := &fakePurger{n: 2}
	j, err := New(Config{SweepInterval: time.Second, Retention: 48 * time.Hour}, noopSweeper{}, purger, nil)
	require.NoError(t, err)
	require.Equal(t, 2, j.Jobs())

	require.Equal(t, 2, j.PurgeUploads(context.Background()))
	require.Equal(t, 48*time.Hour, purger.age)

	purger.err = errors.New("bucket unavailable")
	purger.n = 1
	require.Equal(t, 1, j.PurgeUploads(context.Background()))
}

func TestPurgeDisabledWithoutRetention(t *testing.T) {
	purger := &fakePurger{}
	j, err := New(Config{SweepInterval: time.Second}, noopSweeper{}, purger, nil)
	require.NoError(t, err)
	require.Equal(t, 1, j.Jobs())
	require.Zero(t, j.PurgeUploads(context.Background()))
	require.Zero(t, purger.calls.Load())
}

func TestNewRejectsZeroInterval(t *testing.T) {
	_, err := New(Config{}, noopSweeper{}, nil, nil)
	require.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	j, err := New(Config{SweepInterval: time.Hour}, noopSweeper{}, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

type noopSweeper struct{}

func (noopSweeper) Sweep(context.Context) int { return 0 }
