// Package governor bounds concurrent network fetches and spaces them out.
//
// A Governor hands out a fixed number of slots. A slot is held only for the
// duration of one network fetch, so extraction and filtering of fetched
// content never count against the bound.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/book-harvester/internal/clock/system"
	"github.com/JakeFAU/book-harvester/internal/metrics"
)

var (
	// ErrStopped is returned by Do once Stop has been called.
	ErrStopped = errors.New("governor stopped")
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Sleeper pauses for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RateLimiter caps the request rate for the host of a URL.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Config sizes the governor.
type Config struct {
	// MaxConcurrent is the number of simultaneous fetches (CONCURRENT_REQUESTS).
	MaxConcurrent int
	// Delay is the politeness pause before every fetch (REQUESTS_DELAY).
	Delay time.Duration
}

// Governor implements the concurrency bound and politeness delay.
type Governor struct {
	sem     *semaphore.Weighted
	limit   int
	delay   time.Duration
	sleeper Sleeper
	limiter RateLimiter
	robots  RobotsPolicy
	logger  *zap.Logger

	stopped  atomic.Bool
	inFlight atomic.Int64
	peak     atomic.Int64
}

// Option customises a Governor.
type Option func(*Governor)

// WithSleeper replaces the real-time sleeper.
func WithSleeper(s Sleeper) Option {
	return func(g *Governor) { g.sleeper = s }
}

// WithRateLimiter adds a per-host rate cap.
func WithRateLimiter(l RateLimiter) Option {
	return func(g *Governor) { g.limiter = l }
}

// WithRobots enables robots.txt checks before acquiring a slot.
func WithRobots(p RobotsPolicy) Option {
	return func(g *Governor) { g.robots = p }
}

// New builds a Governor. MaxConcurrent below one is treated as one.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := max(1, cfg.MaxConcurrent)
	g := &Governor{
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		delay:   max(0, cfg.Delay),
		sleeper: system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs fn while holding a slot. The politeness delay and any rate wait
// happen after the slot is acquired and before fn starts. Calls that obtain
// a slot after Stop return ErrStopped without running fn.
func (g *Governor) Do(ctx context.Context, rawURL string, fn func(context.Context) error) error {
	if g.stopped.Load() {
		return ErrStopped
	}
	if g.robots != nil && !g.robots.Allowed(ctx, rawURL) {
		metrics.ObserveRobotsDenied(rawURL)
		return fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer g.sem.Release(1)

	if g.stopped.Load() {
		return ErrStopped
	}
	if err := g.sleeper.Sleep(ctx, g.delay); err != nil {
		return fmt.Errorf("politeness delay: %w", err)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, rawURL); err != nil {
			return err
		}
	}

	g.enter()
	defer g.leave()
	return fn(ctx)
}

// PagePause applies the politeness delay before a catalog page fetch. It
// does not take a slot.
func (g *Governor) PagePause(ctx context.Context) error {
	if err := g.sleeper.Sleep(ctx, g.delay); err != nil {
		return fmt.Errorf("page politeness delay: %w", err)
	}
	return nil
}

// Stop makes every later slot holder return ErrStopped. Fetches already
// running are not interrupted.
func (g *Governor) Stop() {
	if g.stopped.CompareAndSwap(false, true) {
		g.logger.Debug("Governor stopped", zap.Int64("in_flight", g.inFlight.Load()))
	}
}

// Limit returns the configured concurrency bound.
func (g *Governor) Limit() int { return g.limit }

// InFlight returns the number of fetches currently running.
func (g *Governor) InFlight() int { return int(g.inFlight.Load()) }

// Peak returns the highest InFlight value observed.
func (g *Governor) Peak() int { return int(g.peak.Load()) }

func (g *Governor) enter() {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.IncInFlight()
}

func (g *Governor) leave() {
	g.inFlight.Add(-1)
	metrics.DecInFlight()
}
