// Package app initializes and holds long-lived pipeline services, acting as
// a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/checkpoint"
	"github.com/JakeFAU/lakeingest/internal/clock/system"
	"github.com/JakeFAU/lakeingest/internal/columnar"
	"github.com/JakeFAU/lakeingest/internal/config"
	"github.com/JakeFAU/lakeingest/internal/fetcher/rest"
	"github.com/JakeFAU/lakeingest/internal/hash/sha256"
	"github.com/JakeFAU/lakeingest/internal/id/uuid"
	"github.com/JakeFAU/lakeingest/internal/normalize"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
	"github.com/JakeFAU/lakeingest/internal/policy/ratelimit"
	"github.com/JakeFAU/lakeingest/internal/progress"
	"github.com/JakeFAU/lakeingest/internal/progress/sinks"
	"github.com/JakeFAU/lakeingest/internal/publisher/pubsub"
	"github.com/JakeFAU/lakeingest/internal/staging"
	"github.com/JakeFAU/lakeingest/internal/storage"
	"github.com/JakeFAU/lakeingest/internal/storage/memory"
	"github.com/JakeFAU/lakeingest/internal/storage/postgres"
	"github.com/JakeFAU/lakeingest/internal/store"
)

// App holds the services shared by the ingest and transform commands. It
// is built once at startup from a validated config.Config.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	objects    pipeline.ObjectStore
	watermarks pipeline.WatermarkStore
	publisher  pipeline.Publisher
	clock      pipeline.Clock
	ids        pipeline.IDGenerator
	hasher     pipeline.Hasher
	fetcherOps []rest.Option
	history    store.RunHistory
	events     progress.Emitter

	closers []namedCloser
}

const eventsCloseTimeout = 10 * time.Second

type namedCloser struct {
	name string
	fn   func() error
}

// Option overrides a dependency, mostly for tests.
type Option func(*App)

// WithObjectStore replaces the configured storage backend.
func WithObjectStore(objects pipeline.ObjectStore) Option {
	return func(a *App) { a.objects = objects }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p pipeline.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithClock replaces the system clock.
func WithClock(c pipeline.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRunHistory replaces the configured run history backend.
func WithRunHistory(h store.RunHistory) Option {
	return func(a *App) { a.history = h }
}

// WithFetcherOptions passes options through to the REST fetcher.
func WithFetcherOptions(opts ...rest.Option) Option {
	return func(a *App) { a.fetcherOps = append(a.fetcherOps, opts...) }
}

// New wires every service named by cfg. It fails fast when a backend
// cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		hasher: sha256.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Info("Initializing pipeline services",
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.String("checkpoint_mode", cfg.Checkpoint.Mode),
	)

	if a.objects == nil {
		objects, closeFn, err := storage.New(ctx, cfg.Storage, logger.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.objects = objects
		a.closers = append(a.closers, namedCloser{"storage", closeFn})
	}

	if cfg.Checkpoint.Mode == config.CheckpointPersisted {
		if err := a.initWatermarks(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if a.publisher == nil && cfg.PubSub.Topic != "" {
		pub, err := pubsub.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, logger.Named("pubsub"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, namedCloser{"pubsub", pub.Close})
	}

	if err := a.initHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("Pipeline services initialized")
	return a, nil
}

func (a *App) initWatermarks(ctx context.Context) error {
	cp := a.cfg.Checkpoint
	switch cp.Store {
	case config.WatermarkObject, "":
		a.watermarks = checkpoint.NewObjectWatermarkStore(a.objects, cp.Prefix, a.clock)
	case config.WatermarkMemory:
		a.watermarks = memory.NewWatermarkStore()
	case config.WatermarkPostgres:
		wm, err := postgres.NewWatermarkStore(ctx, postgres.WatermarkStoreConfig{
			DSN:   cp.Postgres.DSN,
			Table: cp.Postgres.Table,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize watermark store: %w", err)
		}
		a.watermarks = wm
		a.closers = append(a.closers, namedCloser{"postgres", func() error {
			wm.Close()
			return nil
		}})
	default:
		return fmt.Errorf("unknown watermark store %q", cp.Store)
	}
	a.logger.Info("Using persisted watermarks", zap.String("store", cp.Store))
	return nil
}

func (a *App) initHistory(ctx context.Context) error {
	h := a.cfg.History
	if a.history == nil {
		switch h.Store {
		case config.HistoryNone, "":
		case config.HistoryMemory:
			a.history = memory.NewRunHistory()
		case config.HistoryPostgres:
			rh, err := postgres.NewRunHistory(ctx, postgres.RunHistoryConfig{
				DSN:          h.Postgres.DSN,
				RunsTable:    h.Postgres.RunsTable,
				SourcesTable: h.Postgres.SourcesTable,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize run history: %w", err)
			}
			a.history = rh
			a.closers = append(a.closers, namedCloser{"history", func() error {
				rh.Close()
				return nil
			}})
		default:
			return fmt.Errorf("unknown history store %q", h.Store)
		}
	}

	var sinkList []progress.Sink
	if a.history != nil {
		sinkList = append(sinkList, sinks.NewStoreSink(a.history, a.logger.Named("history")))
	}
	if h.LogEvents {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("events")))
	}
	if len(sinkList) == 0 {
		return nil
	}

	hub := progress.NewHub(progress.Config{
		MaxBatchEvents: h.BatchSize,
		MaxBatchWait:   h.FlushInterval,
		Logger:         a.logger.Named("events"),
	}, sinkList...)
	a.events = hub
	a.closers = append(a.closers, namedCloser{"events", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), eventsCloseTimeout)
		defer cancel()
		return hub.Close(ctx)
	}})
	a.logger.Info("Recording run history",
		zap.String("store", h.Store),
		zap.Bool("log_events", h.LogEvents),
	)
	return nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// History exposes the run history backend, or nil when none is configured.
func (a *App) History() store.RunHistory {
	return a.history
}

// Objects exposes the object store.
func (a *App) Objects() pipeline.ObjectStore {
	return a.objects
}

func (a *App) runOptions() (pipeline.RunOptions, error) {
	policy, err := pipeline.ParseFailurePolicy(a.cfg.Run.FailurePolicy)
	if err != nil {
		return pipeline.RunOptions{}, err
	}
	return pipeline.RunOptions{
		FailurePolicy: policy,
		Parallelism:   a.cfg.Run.Parallelism,
		Events:        a.events,
	}, nil
}

// Ingestor builds the ingestion orchestrator.
func (a *App) Ingestor() (*pipeline.Ingestor, error) {
	runOpts, err := a.runOptions()
	if err != nil {
		return nil, err
	}
	policy, err := rest.NewRetryPolicy(a.cfg.HTTP.RetryPolicy)
	if err != nil {
		return nil, err
	}

	mode := checkpoint.ModeRelative
	if a.watermarks != nil {
		mode = checkpoint.ModePersisted
	}
	resolver, err := checkpoint.NewResolver(checkpoint.Config{
		Mode:                 mode,
		DefaultLookbackHours: a.cfg.Checkpoint.DefaultLookbackHours,
	}, a.clock, a.watermarks, a.logger.Named("checkpoint"))
	if err != nil {
		return nil, fmt.Errorf("checkpoint resolver: %w", err)
	}

	fetcherOps := a.fetcherOps
	limits := ratelimit.Config{RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond, Burst: a.cfg.HTTP.Burst}
	if limits.Enabled() {
		fetcherOps = append([]rest.Option{rest.WithLimiter(ratelimit.New(limits))}, fetcherOps...)
	}
	fetcher := rest.New(rest.Config{
		Timeout:     a.cfg.HTTP.Timeout,
		BackoffUnit: a.cfg.HTTP.BackoffUnit,
		MaxAttempts: a.cfg.HTTP.MaxAttempts,
		UserAgent:   a.cfg.HTTP.UserAgent,
	}, policy, a.logger.Named("fetcher"), fetcherOps...)

	stager := staging.NewStore(a.objects, a.cfg.Storage.RawPrefix, a.clock, a.hasher, a.logger.Named("staging"))

	return pipeline.NewIngestor(resolver, fetcher, stager, a.watermarks, a.clock, a.ids, pipeline.IngestConfig{
		Run:         runOpts,
		MaxAttempts: a.cfg.HTTP.MaxAttempts,
	}, a.logger.Named("ingest")), nil
}

// Transformer builds the transform orchestrator for processDate. An empty
// processDate uses transform.process_date from config.
func (a *App) Transformer(processDate string) (*pipeline.Transformer, error) {
	runOpts, err := a.runOptions()
	if err != nil {
		return nil, err
	}
	if processDate == "" {
		processDate = a.cfg.Transform.ProcessDate
	}

	writer, err := columnar.NewWriter(a.objects, a.cfg.Storage.CuratedPrefix, a.cfg.Columnar.Compression,
		a.clock, a.hasher, a.logger.Named("columnar"))
	if err != nil {
		return nil, fmt.Errorf("columnar writer: %w", err)
	}

	return pipeline.NewTransformer(
		staging.NewReader(a.objects, a.cfg.Storage.RawPrefix, a.logger.Named("reader")),
		normalize.Default(a.logger.Named("normalize")),
		writer,
		a.publisher,
		a.clock,
		a.ids,
		pipeline.TransformConfig{Run: runOpts, ProcessDate: processDate, Topic: a.cfg.PubSub.Topic},
		a.logger.Named("transform"),
	), nil
}

// TransformSources returns the sources a transform run covers:
// transform.sources when set, otherwise every configured source.
func (a *App) TransformSources(filter []string) ([]string, error) {
	if len(filter) == 0 {
		filter = a.cfg.Transform.Sources
	}
	sources, err := a.cfg.SelectSources(filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	return names, nil
}

// Ready lists the raw zone to confirm the object store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.objects.ListObjects(ctx, a.cfg.Storage.RawPrefix+"/", ""); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	return nil
}

// Close releases every service in reverse order of creation and flushes
// the logger. Close is safe to call more than once.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("Error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("Shutdown finished with errors", zap.Error(errors.Join(errs...)))
	}
	// Sync fails on stderr-backed loggers; there is nowhere to report it.
	_ = a.logger.Sync()
}
