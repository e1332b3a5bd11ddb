// Package app builds and holds the long-lived services of a crawler process.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/eures-crawler/internal/api"
	"github.com/JakeFAU/eures-crawler/internal/config"
	"github.com/JakeFAU/eures-crawler/internal/crawler"
	"github.com/JakeFAU/eures-crawler/internal/eures"
	"github.com/JakeFAU/eures-crawler/internal/id/uuid"
	pubmemory "github.com/JakeFAU/eures-crawler/internal/publisher/memory"
	"github.com/JakeFAU/eures-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/eures-crawler/internal/session"
	"github.com/JakeFAU/eures-crawler/internal/storage/gcs"
	"github.com/JakeFAU/eures-crawler/internal/storage/local"
	"github.com/JakeFAU/eures-crawler/internal/storage/memory"
	"github.com/JakeFAU/eures-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/eures-crawler/internal/storage/redis"
	"github.com/JakeFAU/eures-crawler/internal/storage/sqlite"
)

// App holds the services shared by every command.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Status      *crawler.StatusTracker
	Credentials crawler.CredentialStore
	Acquirer    crawler.SessionAcquirer
	Client      *eures.Client
	Repository  crawler.ListingRepository
	// Archive and Publisher are nil when disabled.
	Archive   crawler.BlobStore
	Publisher crawler.Publisher

	checks  map[string]api.ReadinessCheck
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

type options struct {
	dryRun          bool
	credentialsOnly bool
	acquirer        crawler.SessionAcquirer
}

// Option customizes New.
type Option func(*options)

// WithDryRun keeps listings and run notifications in memory.
func WithDryRun() Option {
	return func(o *options) { o.dryRun = true }
}

// CredentialsOnly skips the repository, archive and publisher.
func CredentialsOnly() Option {
	return func(o *options) { o.credentialsOnly = true }
}

// WithAcquirer replaces the configured session driver.
func WithAcquirer(acquirer crawler.SessionAcquirer) Option {
	return func(o *options) { o.acquirer = acquirer }
}

type pinger interface {
	Ping(ctx context.Context) error
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// New initializes every service named by cfg. It fails fast and releases what it already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Status: crawler.NewStatusTracker(),
		checks: map[string]api.ReadinessCheck{},
	}
	if err := a.init(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("credentials", cfg.Credentials.Backend),
		zap.String("storage", a.storageBackend(o)),
		zap.String("session_driver", cfg.Session.Driver),
		zap.Bool("archive", a.Archive != nil),
		zap.Bool("publisher", a.Publisher != nil),
		zap.Bool("dry_run", o.dryRun),
	)
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	var err error
	if a.Credentials, err = a.buildCredentials(); err != nil {
		return fmt.Errorf("init credentials: %w", err)
	}
	a.Acquirer = o.acquirer
	if a.Acquirer == nil {
		a.Acquirer, err = session.New(a.Config.Session.Driver, a.Config.SessionConfig(), a.Config.StaticCredential(), a.Logger)
		if err != nil {
			return fmt.Errorf("init session acquirer: %w", err)
		}
	}
	a.Client = eures.New(a.Config.Query(), a.Config.ClientConfig(), a.Credentials, a.Acquirer, a.Logger)
	if o.credentialsOnly {
		return nil
	}

	if a.Repository, err = a.buildRepository(ctx, o); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	if a.Archive, err = a.buildArchive(ctx); err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	if a.Publisher, err = a.buildPublisher(ctx, o); err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	return nil
}

func (a *App) buildCredentials() (crawler.CredentialStore, error) {
	cfg := a.Config.Credentials
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewCredentialStore(crawler.Credential{}), nil
	case config.BackendRedis:
		client, err := redisstore.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.addCloser("redis", client.Close)
		a.checks["credentials"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return redisstore.NewCredentialStore(client, cfg.Redis.KeyPrefix, a.Logger)
	case config.BackendFile, "":
		return local.NewCredentialStore(cfg.File, a.Logger)
	default:
		return nil, fmt.Errorf("unknown credentials backend %q", cfg.Backend)
	}
}

func (a *App) buildRepository(ctx context.Context, o options) (crawler.ListingRepository, error) {
	var repo crawler.ListingRepository
	switch a.storageBackend(o) {
	case config.BackendMemory:
		return memory.NewListingStore(), nil
	case config.BackendPostgres:
		store, err := postgres.NewListingStore(ctx, a.Config.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres", func() error { store.Close(); return nil })
		repo = store
	case config.BackendSQLite, "":
		store, err := sqlite.Open(a.Config.Storage.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.addCloser("sqlite", func() error { store.Close(); return nil })
		repo = store
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.Config.Storage.Backend)
	}

	if p, ok := repo.(pinger); ok {
		a.checks["repository"] = p.Ping
	}
	if err := a.EnsureSchema(ctx, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *App) buildArchive(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return memory.NewPageArchive(), nil
	case config.BackendLocal:
		return local.New(cfg.Local)
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		store, err := gcs.New(client, cfg.GCS)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.addCloser("gcs", store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context, o options) (crawler.Publisher, error) {
	if !a.Config.PubSub.Enabled {
		return nil, nil
	}
	if o.dryRun {
		return pubmemory.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.Config.PubSub.Client)
	if err != nil {
		return nil, err
	}
	pub := pubsub.New(client)
	a.addCloser("pubsub", pub.Close)
	return pub, nil
}

func (a *App) storageBackend(o options) string {
	if o.dryRun {
		return config.BackendMemory
	}
	return a.Config.Storage.Backend
}

// EnsureSchema creates the jobs relation when repo supports it.
func (a *App) EnsureSchema(ctx context.Context, repo crawler.ListingRepository) error {
	s, ok := repo.(schemaEnsurer)
	if !ok {
		return nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Pipeline assembles an ingestion pipeline from the app's services.
func (a *App) Pipeline() *crawler.Pipeline {
	opts := []crawler.PipelineOption{
		crawler.WithStatusTracker(a.Status),
		crawler.WithIDGenerator(uuid.New("run")),
	}
	if a.Archive != nil {
		opts = append(opts, crawler.WithArchive(a.Archive))
	}
	if a.Publisher != nil {
		opts = append(opts, crawler.WithPublisher(a.Publisher))
	}
	return crawler.NewPipeline(a.Client, a.Repository, a.Config.PipelineConfig(), a.Logger.Named("pipeline"), opts...)
}

// Run performs one ingestion run.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Pipeline().Run(ctx); err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}
	return nil
}

// Server builds the ops server. A nil trigger disables POST /v1/runs.
func (a *App) Server(trigger api.Trigger) *api.Server {
	opts := make([]api.Option, 0, len(a.checks)+1)
	for name, check := range a.checks {
		opts = append(opts, api.WithReadinessCheck(name, check))
	}
	if trigger != nil {
		opts = append(opts, api.WithTrigger(trigger))
	}
	return api.NewServer(a.Config.Metrics, a.Status, a.Logger, opts...)
}

// Close releases services in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing application services", zap.Error(err))
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}
