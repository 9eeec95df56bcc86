// Package janitor schedules housekeeping: expiring finished progress records
// and purging stale audio uploads.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/metrics"
)

// DefaultPurgeEvery is how often stale uploads are looked for when retention
// is enabled.
const DefaultPurgeEvery = time.Hour

// Sweeper removes expired progress records.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Purger removes uploads older than a cutoff.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Config sets the schedules. A zero Retention disables upload purging.
type Config struct {
	SweepInterval time.Duration
	Retention     time.Duration
	PurgeEvery    time.Duration
}

// Janitor runs the housekeeping jobs on a cron scheduler.
type Janitor struct {
	cron    *cron.Cron
	sweeper Sweeper
	purger  Purger
	cfg     Config
	logger  *zap.Logger
}

// New registers the jobs. purger may be nil.
func New(cfg Config, sweeper Sweeper, purger Purger, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be > 0")
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = DefaultPurgeEvery
	}
	metrics.Init()
	cl := cronLogger{logger: logger}
	j := &Janitor{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		purger:  purger,
		cfg:     cfg,
		logger:  logger,
	}
	if _, err := j.cron.AddFunc(every(cfg.SweepInterval), func() { j.SweepProgress(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule progress sweep: %w", err)
	}
	if purger != nil && cfg.Retention > 0 {
		if _, err := j.cron.AddFunc(every(cfg.PurgeEvery), func() { j.PurgeUploads(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule upload purge: %w", err)
		}
	}
	return j, nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// Jobs reports how many jobs are scheduled.
func (j *Janitor) Jobs() int {
	return len(j.cron.Entries())
}

// Run starts the scheduler and blocks until ctx ends, then waits for running
// jobs to finish.
func (j *Janitor) Run(ctx context.Context) error {
	j.cron.Start()
	j.logger.Info("janitor started", zap.Int("jobs", j.Jobs()))
	<-ctx.Done()
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
	return nil
}

// SweepProgress drops expired progress records.
func (j *Janitor) SweepProgress(ctx context.Context) int {
	n := j.sweeper.Sweep(ctx)
	if n > 0 {
		j.logger.Debug("expired progress records removed", zap.Int("count", n))
	}
	metrics.ObserveJanitor("progress", n)
	return n
}

// PurgeUploads deletes uploads older than the retention window.
func (j *Janitor) PurgeUploads(ctx context.Context) int {
	if j.purger == nil || j.cfg.Retention <= 0 {
		return 0
	}
	n, err := j.purger.PurgeOlderThan(ctx, j.cfg.Retention)
	if err != nil {
		j.logger.Warn("upload purge incomplete", zap.Int("removed", n), zap.Error(err))
	}
	if n > 0 {
		j.logger.Info("stale uploads removed", zap.Int("count", n), zap.Duration("retention", j.cfg.Retention))
	}
	metrics.ObserveJanitor("uploads", n)
	return n
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
