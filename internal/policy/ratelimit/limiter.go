// Package ratelimit throttles Google Drive calls per access token so a single
// user's notebook run cannot exhaust the shared API quota.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/drive"
	"github.com/JakeFAU/resona/internal/hash/sha256"
	"github.com/JakeFAU/resona/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
	// IdleTTL drops a token's bucket once it has not been used for this long.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter is a drive.Factory that gates every Service call on a token bucket
// keyed by the SHA-256 of the access token.
type Limiter struct {
	next   drive.Factory
	clock  clock.Clock
	hasher *sha256.Hasher

	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	observe func(time.Duration)
}

// New wraps next with per-token rate limiting.
func New(next drive.Factory, clk clock.Clock, cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	metrics.Init()
	return &Limiter{
		next:    next,
		clock:   clk,
		hasher:  sha256.New(),
		buckets: make(map[string]*bucket),
		limit:   r,
		burst:   burst,
		idleTTL: ttl,
		observe: metrics.ObserveDriveThrottle,
	}
}

// ForToken implements drive.Factory.
func (l *Limiter) ForToken(ctx context.Context, accessToken string) (drive.Service, error) {
	svc, err := l.next.ForToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	key, err := l.hasher.Hash([]byte(accessToken))
	if err != nil {
		return nil, fmt.Errorf("hash access token: %w", err)
	}
	return &throttled{next: svc, limiter: l.bucketFor(key), owner: l}, nil
}

// Len reports how many token buckets are live.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if k != key && now.Sub(b.lastUsed) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastUsed = now
	return b.limiter
}

func (l *Limiter) wait(ctx context.Context, lim *rate.Limiter) error {
	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("drive rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		l.observe(d)
	}
	return nil
}

type throttled struct {
	next    drive.Service
	limiter *rate.Limiter
	owner   *Limiter
}

func (t *throttled) About(ctx context.Context) (drive.User, error) {
	if err := t.owner.wait(ctx, t.limiter); err != nil {
		return drive.User{}, err
	}
	return t.next.About(ctx)
}

func (t *throttled) GetFolder(ctx context.Context, id string) (drive.File, error) {
	if err := t.owner.wait(ctx, t.limiter); err != nil {
		return drive.File{}, err
	}
	return t.next.GetFolder(ctx, id)
}

func (t *throttled) CreateFolder(ctx context.Context, name, parentID string) (drive.File, error) {
	if err := t.owner.wait(ctx, t.limiter); err != nil {
		return drive.File{}, err
	}
	return t.next.CreateFolder(ctx, name, parentID)
}

func (t *throttled) CreateFile(ctx context.Context, name, parentID, mimeType string, content io.Reader) (drive.File, error) {
	if err := t.owner.wait(ctx, t.limiter); err != nil {
		return drive.File{}, err
	}
	return t.next.CreateFile(ctx, name, parentID, mimeType, content)
}
