// Package poller watches a long-running notebook operation through the status
// endpoint until it completes, fails, disappears, or the watch times out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/operation"
)

// Defaults match the browser client.
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultTimeout     = 5 * time.Minute
	DefaultSettleDelay = 1500 * time.Millisecond
)

var (
	// ErrOperationFailed is returned when the record reports step=error.
	ErrOperationFailed = errors.New("operation failed")
	// ErrUnresolved is returned when the record vanished and the initiator
	// did not report success.
	ErrUnresolved = errors.New("operation outcome unknown")
	// ErrTimedOut is returned when the watch ceiling elapsed.
	ErrTimedOut = errors.New("stopped watching operation")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("poller stopped")
)

// StatusClient fetches one operation status. Implementations return an error
// matching operation.ErrNotFound when the server answers 404.
type StatusClient interface {
	Status(ctx context.Context, id string) (operation.Status, error)
}

// Outcome is the verdict of one Run.
type Outcome int

// Run outcomes.
const (
	Completed Outcome = iota + 1
	Failed
	Unresolved
	TimedOut
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Unresolved:
		return "unresolved"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Update is passed to the observer after every poll.
type Update struct {
	Status  operation.Status
	Err     error
	Attempt int
	Elapsed time.Duration
}

// Config tunes the loop. Zero values fall back to the defaults.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	// SettleDelay is the pause after completion. Negative disables it.
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	} else if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Poller issues at most one status request at a time. A Poller is single use:
// once stopped every Run returns Canceled.
type Poller struct {
	client StatusClient
	clock  clock.Timer
	cfg    Config

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Poller.
func New(client StatusClient, clk clock.Timer, cfg Config) *Poller {
	return &Poller{
		client: client,
		clock:  clk,
		cfg:    cfg.withDefaults(),
		stop:   make(chan struct{}),
	}
}

// Stop ends any Run in progress. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Run polls id until a stopping condition. initiatorSucceeded decides how a
// 404 is read: the record may already have been swept after success. onUpdate
// may be nil. The returned error is nil only for Completed.
func (p *Poller) Run(ctx context.Context, id string, initiatorSucceeded bool, onUpdate func(Update)) (Outcome, error) {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	// In-flight requests are aborted on Stop as well as on ctx.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := p.clock.Now()
	for attempt := 1; ; attempt++ {
		if err := p.interruption(ctx); err != nil {
			return Canceled, err
		}

		st, err := p.client.Status(ctx, id)
		elapsed := p.clock.Now().Sub(start)
		switch {
		case errors.Is(err, operation.ErrNotFound):
			if initiatorSucceeded {
				return Completed, nil
			}
			return Unresolved, fmt.Errorf("%w: %s", ErrUnresolved, id)
		case err != nil:
			if err := p.interruption(ctx); err != nil {
				return Canceled, err
			}
			onUpdate(Update{Err: err, Attempt: attempt, Elapsed: elapsed})
		default:
			onUpdate(Update{Status: st, Attempt: attempt, Elapsed: elapsed})
			if st.Failed() {
				return Failed, fmt.Errorf("%w: %s", ErrOperationFailed, st.Message)
			}
			if st.Done() {
				p.settle(ctx)
				return Completed, nil
			}
		}

		remaining := p.cfg.Timeout - elapsed
		if remaining <= 0 {
			return TimedOut, fmt.Errorf("%w after %s", ErrTimedOut, p.cfg.Timeout)
		}
		select {
		case <-p.clock.After(min(p.cfg.Interval, remaining)):
		case <-ctx.Done():
		}
		if p.clock.Now().Sub(start) >= p.cfg.Timeout {
			if err := p.interruption(ctx); err != nil {
				return Canceled, err
			}
			return TimedOut, fmt.Errorf("%w after %s", ErrTimedOut, p.cfg.Timeout)
		}
	}
}

// settle gives the server a moment to finish writing before the caller moves
// on. Cancellation cuts it short without changing the verdict.
func (p *Poller) settle(ctx context.Context) {
	select {
	case <-p.clock.After(p.cfg.SettleDelay):
	case <-ctx.Done():
	}
}

func (p *Poller) interruption(ctx context.Context) error {
	select {
	case <-p.stop:
		return ErrStopped
	default:
	}
	return ctx.Err()
}
