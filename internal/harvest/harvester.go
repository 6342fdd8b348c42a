package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/book-harvester/internal/catalog"
	"github.com/JakeFAU/book-harvester/internal/checkpoint"
	"github.com/JakeFAU/book-harvester/internal/clock/system"
	"github.com/JakeFAU/book-harvester/internal/filter"
	"github.com/JakeFAU/book-harvester/internal/governor"
	"github.com/JakeFAU/book-harvester/internal/hash/sha256"
	iduuid "github.com/JakeFAU/book-harvester/internal/id/uuid"
	"github.com/JakeFAU/book-harvester/internal/metrics"
	"github.com/JakeFAU/book-harvester/internal/publisher"
	"github.com/JakeFAU/book-harvester/internal/storage"
	"github.com/JakeFAU/book-harvester/internal/store"
)

// Outcome labels used in per-entry log lines and metrics.
const (
	OutcomeSaved = "SAVED"
	OutcomeSkip  = "SKIP"
	OutcomeError = "ERROR"
)

const textContentType = "text/plain; charset=utf-8"

// ErrAlreadyRan is returned when Run is called a second time.
var ErrAlreadyRan = errors.New("harvester has already run")

// PageSource yields catalog pages.
type PageSource interface {
	NextPage(ctx context.Context, pageURL string) (catalog.Page, error)
}

// Fetcher downloads one URL, retrying transient failures itself.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Governor bounds concurrent fetches.
type Governor interface {
	Do(ctx context.Context, rawURL string, fn func(context.Context) error) error
	Stop()
	InFlight() int
}

// Extractor turns fetched bytes into plain text.
type Extractor interface {
	Extract(raw []byte, hint string) (string, error)
}

// Hasher fingerprints accepted text.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Config holds the run-level knobs.
type Config struct {
	// TargetBooks stops the run once the checkpoint holds this many books.
	TargetBooks int
	// MinWords is the acceptance threshold.
	MinWords int
	// CatalogURL is the API base; the walk starts at CatalogURL + "/books".
	CatalogURL string
	// ForceHTTPS upgrades http: format links before fetching.
	ForceHTTPS bool
	// Topic names the publish destination for accepted-book events.
	Topic string
}

// Deps are the collaborators a Harvester drives. Publisher and Runs are
// optional; Hasher, IDs and Clock default to the production implementations.
type Deps struct {
	Pages      PageSource
	Fetcher    Fetcher
	Governor   Governor
	Extractor  Extractor
	Checkpoint checkpoint.Store
	Blobs      storage.BlobStore
	Publisher  publisher.Publisher
	Runs       store.RunRepository
	Hasher     Hasher
	IDs        IDGenerator
	Clock      Clock
	Logger     *zap.Logger
}

// Harvester orchestrates one acquisition run.
type Harvester struct {
	cfg    Config
	deps   Deps
	filter filter.Filter
	logger *zap.Logger

	ran    atomic.Bool
	claims sync.Map
	counts counters

	mu        sync.RWMutex
	runID     string
	state     string
	startedAt time.Time
}

// New validates cfg and deps and returns a Harvester.
func New(cfg Config, deps Deps) (*Harvester, error) {
	switch {
	case cfg.TargetBooks <= 0:
		return nil, fmt.Errorf("target books must be positive, got %d", cfg.TargetBooks)
	case cfg.MinWords < 0:
		return nil, fmt.Errorf("min words must not be negative, got %d", cfg.MinWords)
	case strings.TrimSpace(cfg.CatalogURL) == "":
		return nil, fmt.Errorf("catalog url is required")
	case deps.Pages == nil, deps.Fetcher == nil, deps.Governor == nil,
		deps.Extractor == nil, deps.Checkpoint == nil, deps.Blobs == nil:
		return nil, fmt.Errorf("pages, fetcher, governor, extractor, checkpoint and blobs are required")
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.IDs == nil {
		deps.IDs = iduuid.NewUUIDGenerator()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Harvester{
		cfg:    cfg,
		deps:   deps,
		filter: filter.Filter{MinWords: cfg.MinWords},
		logger: deps.Logger,
		state:  StateIdle,
	}, nil
}

// Run walks the catalog until the target is met or the catalog is exhausted.
// A page fetch failure or context cancellation ends the run with an error;
// the returned Summary is valid in every case.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	if !h.ran.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRan
	}
	runUUID, err := h.deps.IDs.NewRawID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	start := h.deps.Clock.Now()
	h.mu.Lock()
	h.runID = runUUID.String()
	h.state = StateRunning
	h.startedAt = start
	h.mu.Unlock()

	logger := h.logger.With(zap.String("run_id", h.runID))
	h.startRun(ctx, runUUID, start, logger)
	metrics.SetCollected(h.deps.Checkpoint.Count())
	logger.Info("Harvest starting",
		zap.Int("already_collected", h.deps.Checkpoint.Count()),
		zap.Int("target", h.cfg.TargetBooks),
		zap.Int("min_words", h.cfg.MinWords),
	)

	exhausted, runErr := h.walk(ctx, logger)
	summary := h.summary(start, exhausted)

	state := StateComplete
	switch {
	case runErr != nil:
		state = StateFailed
	case !summary.TargetReached():
		state = StatePartial
	}
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	h.completeRun(ctx, runUUID, summary, state, runErr, logger)

	if runErr != nil {
		logger.Error("Harvest aborted", zap.Error(runErr), zap.Int("accepted", summary.Accepted))
		return summary, runErr
	}
	logger.Info("Harvest finished",
		zap.Int("accepted", summary.Accepted),
		zap.Int("target", summary.Target),
		zap.Int("saved_this_run", summary.SavedThisRun),
		zap.Bool("catalog_exhausted", summary.Exhausted),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// walk drives the page loop. Pages are strictly sequential: the next page is
// requested only after every task of the current one has returned.
func (h *Harvester) walk(ctx context.Context, logger *zap.Logger) (bool, error) {
	pageURL := catalog.BooksURL(h.cfg.CatalogURL)
	for pageNum := 1; ; pageNum++ {
		if h.targetReached() {
			logger.Info("Target reached", zap.Int("accepted", h.deps.Checkpoint.Count()))
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("harvest interrupted: %w", err)
		}

		page, err := h.deps.Pages.NextPage(ctx, pageURL)
		if err != nil {
			return false, fmt.Errorf("fetch page %d: %w", pageNum, err)
		}
		h.counts.pages.Add(1)
		metrics.ObservePage()
		logger.Debug("Catalog page fetched",
			zap.Int("page", pageNum),
			zap.Int("entries", len(page.Entries)),
			zap.Int("catalog_count", page.Count),
		)

		h.processPage(ctx, page.Entries, logger)

		if h.targetReached() {
			logger.Info("Target reached", zap.Int("accepted", h.deps.Checkpoint.Count()), zap.Int("page", pageNum))
			return false, nil
		}
		if page.Next == "" {
			logger.Warn("Catalog exhausted before target",
				zap.Int("accepted", h.deps.Checkpoint.Count()),
				zap.Int("target", h.cfg.TargetBooks),
			)
			return true, nil
		}
		pageURL = page.Next
	}
}

func (h *Harvester) processPage(ctx context.Context, entries []catalog.Entry, logger *zap.Logger) {
	var g errgroup.Group
	for _, entry := range entries {
		if h.targetReached() || ctx.Err() != nil {
			break
		}
		if h.deps.Checkpoint.IsCollected(entry.ID) {
			h.counts.skipped.Add(1)
			continue
		}
		if _, claimed := h.claims.LoadOrStore(entry.ID, struct{}{}); claimed {
			h.counts.skipped.Add(1)
			logger.Debug("Entry already claimed by another task", zap.Int("id", entry.ID))
			continue
		}
		g.Go(func() error {
			h.processEntry(ctx, entry, logger)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Harvester) processEntry(ctx context.Context, entry catalog.Entry, logger *zap.Logger) {
	logger = logger.With(zap.Int("id", entry.ID))

	sourceURL, ok := catalog.SelectFormat(entry.Formats)
	if !ok {
		h.drop(logger, "no downloadable format")
		return
	}
	sourceURL, err := catalog.NormalizeURL(sourceURL, h.cfg.ForceHTTPS)
	if err != nil {
		h.fail(logger, "normalize url", err)
		return
	}

	var body []byte
	err = h.deps.Governor.Do(ctx, sourceURL, func(ctx context.Context) error {
		b, getErr := h.deps.Fetcher.Get(ctx, sourceURL)
		body = b
		return getErr
	})
	switch {
	case errors.Is(err, governor.ErrStopped):
		logger.Debug("Target reached before fetch; entry not processed")
		return
	case errors.Is(err, governor.ErrDisallowed):
		h.drop(logger, "disallowed by robots.txt")
		return
	case err != nil && ctx.Err() != nil:
		logger.Debug("Entry abandoned on shutdown", zap.Error(err))
		return
	case err != nil:
		h.fail(logger.With(zap.String("url", sourceURL)), "fetch", err)
		return
	}

	text, err := h.deps.Extractor.Extract(body, sourceURL)
	if err != nil {
		h.fail(logger, "extract", err)
		return
	}
	words, accepted := h.filter.Accept(text)
	if !accepted {
		h.counts.dropped.Add(1)
		metrics.ObserveBook("skip")
		logger.Info(OutcomeSkip,
			zap.Int("words", words),
			zap.Int("min_words", h.cfg.MinWords),
		)
		return
	}

	// Persistence must not be cut short by shutdown once the text is in hand.
	rec, err := h.persist(context.WithoutCancel(ctx), entry, sourceURL, text, words)
	if err != nil {
		h.fail(logger, "persist", err)
		return
	}
	h.counts.saved.Add(1)
	total := h.deps.Checkpoint.Count()
	metrics.ObserveBook("saved")
	metrics.SetCollected(total)
	logger.Info(OutcomeSaved,
		zap.String("title", rec.Title),
		zap.Int("words", words),
		zap.Int("accepted", total),
		zap.Int("target", h.cfg.TargetBooks),
	)
	if total >= h.cfg.TargetBooks {
		h.deps.Governor.Stop()
	}
}

// persist writes the artifact first and records the entry only after the
// artifact is durable.
func (h *Harvester) persist(ctx context.Context, entry catalog.Entry, sourceURL, text string, words int) (checkpoint.Record, error) {
	filename := fmt.Sprintf("%d.txt", entry.ID)
	uri, err := h.deps.Blobs.PutObject(ctx, filename, textContentType, strings.NewReader(text))
	if err != nil {
		return checkpoint.Record{}, fmt.Errorf("write %s: %w", filename, err)
	}
	digest, err := h.deps.Hasher.Hash([]byte(text))
	if err != nil {
		return checkpoint.Record{}, fmt.Errorf("hash %s: %w", filename, err)
	}
	rec := checkpoint.Record{
		ID:            entry.ID,
		Title:         entry.DisplayTitle(),
		Authors:       entry.Authors,
		Filename:      filename,
		CoverImage:    entry.CoverImage(),
		WordCount:     words,
		SavedAt:       h.deps.Clock.Now(),
		DownloadCount: entry.DownloadCount,
		Bookshelves:   entry.Bookshelves,
		Subjects:      entry.Subjects,
		Languages:     entry.Languages,
		SourceURL:     sourceURL,
		ContentHash:   digest,
		Extra:         passthrough(entry.Raw),
	}
	if err := h.deps.Checkpoint.RecordAccepted(ctx, rec); err != nil {
		return checkpoint.Record{}, fmt.Errorf("record %d: %w", entry.ID, err)
	}
	h.publish(ctx, rec, uri)
	return rec, nil
}

func (h *Harvester) publish(ctx context.Context, rec checkpoint.Record, uri string) {
	if h.deps.Publisher == nil {
		return
	}
	event := publisher.BookAccepted{
		RunID:     h.RunID(),
		BookID:    rec.ID,
		Title:     rec.Title,
		Filename:  rec.Filename,
		WordCount: rec.WordCount,
		URI:       uri,
		SavedAt:   rec.SavedAt,
	}
	if _, err := h.deps.Publisher.Publish(ctx, h.cfg.Topic, event); err != nil {
		h.logger.Warn("Failed to publish accepted book", zap.Int("id", rec.ID), zap.Error(err))
	}
}

// modelled keys are already carried by typed Record fields.
var modelled = map[string]bool{
	"id": true, "title": true, "authors": true, "download_count": true,
	"bookshelves": true, "subjects": true, "languages": true,
}

func passthrough(raw map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if !modelled[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h *Harvester) drop(logger *zap.Logger, reason string) {
	h.counts.dropped.Add(1)
	metrics.ObserveBook("dropped")
	logger.Info(OutcomeSkip, zap.String("reason", reason))
}

func (h *Harvester) fail(logger *zap.Logger, stage string, err error) {
	h.counts.errors.Add(1)
	metrics.ObserveBook("error")
	logger.Warn(OutcomeError, zap.String("stage", stage), zap.Error(err))
}

func (h *Harvester) targetReached() bool {
	return h.deps.Checkpoint.Count() >= h.cfg.TargetBooks
}

func (h *Harvester) summary(start time.Time, exhausted bool) Summary {
	return Summary{
		RunID:        h.RunID(),
		Accepted:     h.deps.Checkpoint.Count(),
		Target:       h.cfg.TargetBooks,
		SavedThisRun: int(h.counts.saved.Load()),
		Skipped:      int(h.counts.skipped.Load()),
		Dropped:      int(h.counts.dropped.Load()),
		Errors:       int(h.counts.errors.Load()),
		Pages:        int(h.counts.pages.Load()),
		Exhausted:    exhausted,
		Duration:     h.deps.Clock.Now().Sub(start),
	}
}

// RunID returns the current run's id, empty before Run.
func (h *Harvester) RunID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runID
}

// Progress returns a snapshot suitable for the status endpoint.
func (h *Harvester) Progress() Progress {
	h.mu.RLock()
	runID, state, startedAt := h.runID, h.state, h.startedAt
	h.mu.RUnlock()
	return Progress{
		RunID:        runID,
		State:        state,
		StartedAt:    startedAt,
		Accepted:     h.deps.Checkpoint.Count(),
		Target:       h.cfg.TargetBooks,
		SavedThisRun: int(h.counts.saved.Load()),
		Skipped:      int(h.counts.skipped.Load()),
		Dropped:      int(h.counts.dropped.Load()),
		Errors:       int(h.counts.errors.Load()),
		Pages:        int(h.counts.pages.Load()),
		InFlight:     h.deps.Governor.InFlight(),
	}
}

func (h *Harvester) startRun(ctx context.Context, runID uuid.UUID, start time.Time, logger *zap.Logger) {
	if h.deps.Runs == nil {
		return
	}
	if err := h.deps.Runs.StartRun(ctx, runID, start, h.cfg.TargetBooks); err != nil {
		logger.Warn("Failed to record run start", zap.Error(err))
	}
}

func (h *Harvester) completeRun(
	ctx context.Context,
	runID uuid.UUID,
	summary Summary,
	state string,
	runErr error,
	logger *zap.Logger,
) {
	if h.deps.Runs == nil {
		return
	}
	result := store.RunResult{
		FinishedAt: h.deps.Clock.Now(),
		Status:     runStatus(state),
		Accepted:   summary.Accepted,
		Saved:      summary.SavedThisRun,
	}
	if runErr != nil {
		msg := runErr.Error()
		result.ErrorMessage = &msg
	}
	if err := h.deps.Runs.CompleteRun(context.WithoutCancel(ctx), runID, result); err != nil {
		logger.Warn("Failed to record run completion", zap.Error(err))
	}
}

func runStatus(state string) store.RunStatus {
	switch state {
	case StateComplete:
		return store.RunComplete
	case StatePartial:
		return store.RunPartial
	default:
		return store.RunError
	}
}
