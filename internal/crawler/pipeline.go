package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/metrics"
)

// PipelineConfig controls the ingestion run.
type PipelineConfig struct {
	// PageDelay is slept between consecutive pages.
	PageDelay time.Duration
	// ArchivePrefix is the object prefix for raw search pages when an archive is configured.
	ArchivePrefix string
	// Topic receives the run summary when a publisher is configured.
	Topic string
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pipeline crawls every search page, fetches details and upserts listings page by page.
type Pipeline struct {
	client    APIClient
	repo      ListingRepository
	archive   BlobStore
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	status    *StatusTracker
	sleep     Sleeper
	cfg       PipelineConfig
	logger    *zap.Logger
}

// PipelineOption customizes optional collaborators.
type PipelineOption func(*Pipeline)

// WithArchive stores each raw search page in the given blob store.
func WithArchive(store BlobStore) PipelineOption {
	return func(p *Pipeline) { p.archive = store }
}

// WithPublisher announces completed runs.
func WithPublisher(pub Publisher) PipelineOption {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock overrides the time source.
func WithClock(clock Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = clock }
}

// WithIDGenerator overrides how run IDs are produced.
func WithIDGenerator(ids IDGenerator) PipelineOption {
	return func(p *Pipeline) { p.ids = ids }
}

// WithStatusTracker reports progress to the tracker.
func WithStatusTracker(tracker *StatusTracker) PipelineOption {
	return func(p *Pipeline) { p.status = tracker }
}

// WithSleeper overrides the inter-page throttle.
func WithSleeper(sleep Sleeper) PipelineOption {
	return func(p *Pipeline) { p.sleep = sleep }
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	client APIClient,
	repo ListingRepository,
	cfg PipelineConfig,
	logger *zap.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		client: client,
		repo:   repo,
		cfg:    cfg,
		clock:  utcClock{},
		sleep:  sleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full crawl. Reruns overwrite previously ingested listings.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{
		RunID:     p.newRunID(),
		StartedAt: p.clock.Now(),
	}
	logger := p.logger.With(zap.String("run_id", summary.RunID))
	p.status.Start(summary)

	first, err := p.client.Search(ctx, 1)
	if err != nil {
		return p.fail(summary, logger, fmt.Errorf("search page 1: %w", err))
	}
	summary.TotalRecords = first.TotalRecords
	summary.TotalPages = TotalPages(first.TotalRecords)
	logger.Info("search result size",
		zap.Int("total_records", summary.TotalRecords),
		zap.Int("total_pages", summary.TotalPages),
	)

	for page := 1; page <= summary.TotalPages; page++ {
		result := first
		if page > 1 {
			if err := p.sleep(ctx, p.cfg.PageDelay); err != nil {
				return p.fail(summary, logger, fmt.Errorf("throttle before page %d: %w", page, err))
			}
			result, err = p.client.Search(ctx, page)
			if err != nil {
				return p.fail(summary, logger, fmt.Errorf("search page %d: %w", page, err))
			}
		}
		logger.Info("fetched search page", zap.Int("page", page), zap.Int("listings", len(result.Listings)))
		p.archivePage(ctx, logger, summary.RunID, page, result)

		ingested, missing, err := p.ingestPage(ctx, logger, page, result.Listings)
		if err != nil {
			return p.fail(summary, logger, err)
		}
		summary.PagesCommitted++
		summary.ListingsIngested += ingested
		summary.DetailsMissing += missing
		summary.CredentialRefreshes = p.client.Refreshes()
		metrics.ObservePage(ingested, missing)
		p.status.Progress(summary)
	}

	summary.CredentialRefreshes = p.client.Refreshes()
	summary.FinishedAt = p.clock.Now()
	p.publish(ctx, logger, summary)
	p.status.Finish(summary, nil)
	metrics.ObserveRun(string(RunStateSucceeded))
	logger.Info("ingestion run complete",
		zap.Int("listings", summary.ListingsIngested),
		zap.Int("details_missing", summary.DetailsMissing),
		zap.Int("credential_refreshes", summary.CredentialRefreshes),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// ingestPage upserts every listing of one page inside a single batch and commits it.
func (p *Pipeline) ingestPage(
	ctx context.Context,
	logger *zap.Logger,
	page int,
	listings []SearchListing,
) (int, int, error) {
	batch, err := p.repo.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch for page %d: %w", page, err)
	}

	ingested, missing := 0, 0
	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			p.rollback(batch, logger, page)
			return 0, 0, fmt.Errorf("page %d interrupted: %w", page, err)
		}
		if strings.TrimSpace(listing.ID) == "" {
			logger.Warn("skipping listing without id", zap.Int("page", page), zap.String("title", listing.Title))
			continue
		}
		detail, ok, err := p.client.FetchDetail(ctx, listing.ID)
		if err != nil {
			p.rollback(batch, logger, page)
			return 0, 0, fmt.Errorf("fetch detail %s: %w", listing.ID, err)
		}
		if !ok {
			missing++
			logger.Debug("detail unavailable", zap.String("listing_id", listing.ID))
		}
		if err := batch.Upsert(ctx, Normalize(listing, detail)); err != nil {
			p.rollback(batch, logger, page)
			return 0, 0, fmt.Errorf("upsert listing %s: %w", listing.ID, err)
		}
		ingested++
	}

	if err := batch.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit page %d: %w", page, err)
	}
	logger.Debug("committed page", zap.Int("page", page), zap.Int("listings", ingested))
	return ingested, missing, nil
}

func (p *Pipeline) rollback(batch ListingBatch, logger *zap.Logger, page int) {
	// The run context may already be canceled; rollback must still reach the store.
	if err := batch.Rollback(context.Background()); err != nil {
		logger.Warn("rollback failed", zap.Int("page", page), zap.Error(err))
	}
}

func (p *Pipeline) archivePage(ctx context.Context, logger *zap.Logger, runID string, page int, result SearchPage) {
	if p.archive == nil || len(result.Raw) == 0 {
		return
	}
	path := p.archivePath(runID, page)
	uri, err := p.archive.PutObject(ctx, path, "application/json", bytes.NewReader(result.Raw))
	if err != nil {
		logger.Warn("archive search page failed", zap.Int("page", page), zap.Error(err))
		return
	}
	logger.Debug("archived search page", zap.Int("page", page), zap.String("uri", uri))
}

func (p *Pipeline) archivePath(runID string, page int) string {
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/page-%04d.json", runID, page)
	}
	return fmt.Sprintf("%s/%s/page-%04d.json", prefix, runID, page)
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, summary RunSummary) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("published run summary", zap.String("topic", p.cfg.Topic), zap.String("message_id", id))
}

func (p *Pipeline) fail(summary RunSummary, logger *zap.Logger, err error) (RunSummary, error) {
	summary.FinishedAt = p.clock.Now()
	summary.CredentialRefreshes = p.client.Refreshes()
	status := RunStateFailed
	if errors.Is(err, context.Canceled) {
		logger.Warn("ingestion run canceled", zap.Int("pages_committed", summary.PagesCommitted))
	} else {
		logger.Error("ingestion run failed", zap.Int("pages_committed", summary.PagesCommitted), zap.Error(err))
	}
	p.status.Finish(summary, err)
	metrics.ObserveRun(string(status))
	return summary, err
}

func (p *Pipeline) newRunID() string {
	if p.ids != nil {
		if id, err := p.ids.NewID(); err == nil {
			return id
		}
	}
	return p.clock.Now().Format("20060102T150405Z")
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
