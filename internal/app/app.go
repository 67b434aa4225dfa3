// Package app wires the application components together: configuration,
// logging, the dedup cache, the upstream clients, the capability probe, the
// job registry and the pipeline manager.
package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/cache"
	"github.com/ternarybob/imago/internal/capability"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/handlers"
	"github.com/ternarybob/imago/internal/ml"
	"github.com/ternarybob/imago/internal/pipeline"
	"github.com/ternarybob/imago/internal/registry"
	"github.com/ternarybob/imago/internal/services/collection"
	"github.com/ternarybob/imago/internal/vectorstore"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Cache    *cache.DedupCache
	MLClient *ml.Client
	Store    *vectorstore.Client
	Probe    *capability.Probe
	Registry *registry.Registry
	Manager  *pipeline.Manager

	CollectionService *collection.Service

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	IngestHandler     *handlers.IngestHandler
	CollectionHandler *handlers.CollectionHandler
	LogsHandler       *handlers.LogsHandler

	ctx       context.Context
	cancelCtx context.CancelFunc
	gc        *cron.Cron
}

// New builds the application from configuration. Start must be called before
// serving; Close releases everything in reverse order.
func New(cfg *common.Config) (*App, error) {
	logger := common.InitLogger(cfg)

	dedupCache, err := cache.New(cfg.Cache.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedup cache: %w", err)
	}

	mlClient := ml.NewClient(cfg.ML.BaseURL,
		ml.WithTimeout(cfg.ML.Timeout),
		ml.WithCapabilityTimeout(cfg.ML.CapabilityTimeout),
		ml.WithRateLimit(cfg.ML.RateLimit),
		ml.WithLogger(logger),
	)

	store := vectorstore.NewClient(cfg.VectorBaseURL(),
		vectorstore.WithTimeout(cfg.Vector.Timeout),
		vectorstore.WithLogger(logger),
	)

	probe := capability.NewProbe(mlClient, cfg.ML.CapabilityInterval, logger)
	reg := registry.New(logger)

	manager := pipeline.NewManager(pipeline.Config{
		CPUWorkers:      cfg.Pipeline.CPUWorkers,
		GPUWorkers:      cfg.Pipeline.GPUWorkers,
		DBWorkers:       cfg.Pipeline.DBWorkers,
		IOQueueSize:     cfg.Pipeline.IOQueueSize,
		MLBatchSize:     cfg.ML.BatchSize,
		UpsertBatchSize: cfg.Vector.UpsertBatchSize,
		MaxFileSize:     cfg.Pipeline.MaxFileSize,
		GPUIdleFlush:    cfg.Pipeline.GPUIdleFlush,
		DBIdleFlush:     cfg.Pipeline.DBIdleFlush,
	}, reg, dedupCache, mlClient, store, probe, logger)

	collectionService := collection.NewService(store, dedupCache, cfg.Vector.VectorSize, cfg.Vector.Distance, logger)

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:            cfg,
		Logger:            logger,
		Cache:             dedupCache,
		MLClient:          mlClient,
		Store:             store,
		Probe:             probe,
		Registry:          reg,
		Manager:           manager,
		CollectionService: collectionService,
		APIHandler:        handlers.NewAPIHandler(probe, store),
		IngestHandler:     handlers.NewIngestHandler(manager, reg, collectionService, cfg.Pipeline.UploadDir, logger),
		CollectionHandler: handlers.NewCollectionHandler(collectionService, dedupCache, logger),
		LogsHandler:       handlers.NewLogsHandler(reg, logger),
		ctx:               ctx,
		cancelCtx:         cancel,
	}

	return a, nil
}

// Start launches the background components: the capability probe and the
// scheduled badger value-log GC.
func (a *App) Start() error {
	a.Probe.Start(a.ctx)

	if schedule := a.Config.Cache.GCSchedule; schedule != "" {
		a.gc = cron.New()
		if _, err := a.gc.AddFunc(schedule, func() {
			if err := a.Cache.RunGC(); err != nil {
				a.Logger.Warn().Err(err).Msg("Dedup cache GC failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid cache gc schedule %q: %w", schedule, err)
		}
		a.gc.Start()
		a.Logger.Debug().Str("schedule", schedule).Msg("Dedup cache GC scheduled")
	}

	a.Logger.Info().
		Str("ml_service", a.Config.ML.BaseURL).
		Str("vector_store", a.Config.VectorBaseURL()).
		Msg("Application started")
	return nil
}

// Close stops background components and releases resources.
func (a *App) Close() error {
	a.cancelCtx()
	a.Probe.Stop()

	if a.gc != nil {
		a.gc.Stop()
	}

	if err := a.Cache.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close dedup cache")
		return err
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
