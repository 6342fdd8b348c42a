package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/clock/system"
	"github.com/JakeFAU/book-harvester/internal/metrics"
)

const (
	defaultSnippetBytes = 200
	defaultMaxBackoff   = 2 * time.Minute
)

// Response is the raw result of one HTTP attempt.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs exactly one GET, without retrying.
type Transport interface {
	Do(ctx context.Context, url string) (Response, error)
}

// Sleeper waits between retries.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config sets the retry budget.
type Config struct {
	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int
	// InitialBackoff is the first sleep; each further sleep doubles it.
	InitialBackoff time.Duration
	// MaxBackoff caps a single sleep. Defaults to two minutes.
	MaxBackoff time.Duration
	// SnippetBytes bounds the body excerpt carried by HTTPError.
	SnippetBytes int
}

// Fetcher wraps a Transport with retry and exponential backoff.
type Fetcher struct {
	transport Transport
	sleeper   Sleeper
	cfg       Config
	logger    *zap.Logger
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithSleeper replaces the real-timer sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) {
		f.sleeper = s
	}
}

// New builds a Fetcher.
func New(transport Transport, cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.SnippetBytes <= 0 {
		cfg.SnippetBytes = defaultSnippetBytes
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		transport: transport,
		sleeper:   system.New(),
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get returns the body of a 200 response. Transient failures (429, 503, 504
// and network faults) are retried up to RetryLimit times with doubling
// backoff capped at MaxBackoff; any other status fails immediately with *HTTPError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	backoff := f.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		resp, err := f.transport.Do(ctx, url)
		out := Classify(ctx, url, resp, err, f.cfg.SnippetBytes)
		metrics.ObserveFetchAttempt(url, out.Kind.String(), len(out.Body))

		switch out.Kind {
		case KindSuccess:
			return out.Body, nil
		case KindFatal:
			return nil, out.Err
		}

		if attempt > f.cfg.RetryLimit {
			return nil, &TransientError{URL: url, Attempts: attempt, Reason: out.Reason, Cause: out.Err}
		}
		f.logger.Debug("Transient fetch failure; backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.String("reason", out.Reason),
			zap.Duration("backoff", backoff),
		)
		metrics.ObserveBackoff(backoff)
		if err := f.sleeper.Sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("backoff for %s: %w", url, err)
		}
		backoff = min(backoff*2, f.cfg.MaxBackoff)
	}
}

// IsTransient reports whether err is an exhausted transient failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientExhausted)
}
