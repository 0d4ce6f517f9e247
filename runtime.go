package main

import (
	"context"
	"fmt"
	"strings"

	"signal-engine/config"
	"signal-engine/internal/cache"
	"signal-engine/internal/database"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/metrics"
	"signal-engine/internal/risk"
	"signal-engine/internal/sentiment"
	"signal-engine/internal/timeguard"
	"signal-engine/internal/validators"
	"signal-engine/internal/weights"
)

// runtime holds every collaborator a command may need
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *events.EventBus
	metrics *metrics.Recorder
	db      *database.DB
	repo    *database.Repository
	cache   *cache.CacheService
	store   weights.Store
	weights *weights.Engine
	guard   *timeguard.Guard
	engine  *engine.Engine
}

// runtimeOptions adjusts what newRuntime builds for a command
type runtimeOptions struct {
	// DataFile, when set, replaces the configured provider with a JSON file fetcher
	DataFile string
	// Quiet drops the log level to WARN so command output stays readable
	Quiet bool
}

// loadConfig reads the --config file and applies the --log-level flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, quiet bool) *logging.Logger {
	lc := cfg.Logging
	lc.Component = "main"
	if quiet && logLevel == "" && logging.ParseLevel(lc.Level) < logging.WARN {
		lc.Level = "WARN"
		lc.Output = "stderr"
	}
	logger := logging.New(&lc)
	logging.SetDefault(logger)
	return logger
}

// newRuntime wires configuration into a ready engine
func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		logger: newLogger(cfg, opts.Quiet),
		bus:    events.NewEventBus(),
	}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.New()
	}

	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	rt.weights = weights.NewEngine(cfg.Weights, rt.store, rt.logger)
	if err := rt.weights.Load(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}

	if cfg.Redis.Enabled {
		cs, err := cache.NewCacheService(cfg.Redis, rt.logger)
		if err != nil {
			rt.logger.Warn("Redis cache unavailable, continuing without it", "error", err)
		} else {
			rt.cache = cs
			rt.bus.Subscribe(events.EventWeightsUpdated, cs.WeightsMirror())
		}
	}

	fetcher, err := rt.newFetcher(opts.DataFile)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var feed timeguard.EventFeed
	if cfg.Guard.FeedURL != "" {
		feed = timeguard.NewFeedClient(cfg.Guard.FeedURL, cfg.Guard.FeedTimeout, cfg.Guard.FeedTTL)
		rt.logger.Info("Economic calendar feed enabled", "url", cfg.Guard.FeedURL)
	}
	rt.guard, err = timeguard.NewGuard(cfg.Guard, feed, rt.logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	rt.engine, err = engine.New(cfg.Engine, fetcher, rt.weights, rt.logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine.SetValidators(validators.DefaultChain(cfg.Validators))
	rt.engine.SetConstructor(risk.NewConstructor(cfg.Risk, rt.logger))
	rt.engine.SetGuard(rt.guard)
	if cfg.Sentiment.Enabled {
		rt.engine.SetSentiment(sentiment.NewDefaultRouter(cfg.Sentiment, rt.logger))
	}
	rt.engine.SetEventBus(rt.bus)
	rt.engine.SetMetrics(rt.metrics)

	return rt, nil
}

// openStore selects the weights store and, for postgres, connects and migrates
func (rt *runtime) openStore(ctx context.Context) error {
	cfg := rt.cfg
	switch cfg.Weights.Store {
	case "postgres":
		db, err := database.NewDB(ctx, cfg.Database, rt.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.db = db
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		rt.repo = database.NewRepository(db)
		rt.bus.SubscribeAll(rt.repo.EventRecorder())
		rt.store = weights.NewPostgresStore(rt.repo)
	case "memory":
		rt.store = weights.NewMemoryStore()
	default:
		fs, err := weights.NewFileStore(cfg.Weights.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open weights directory: %w", err)
		}
		rt.store = fs
	}
	rt.logger.Info("Weights store ready", "store", cfg.Weights.Store)
	return nil
}

// newFetcher builds the market-data chain: provider, retry and breaker,
// then the shared Redis frame cache when connected
func (rt *runtime) newFetcher(dataFile string) (market.Fetcher, error) {
	cfg := rt.cfg
	if dataFile == "" && cfg.Market.Provider == "file" {
		dataFile = cfg.Market.DataFile
	}
	if dataFile != "" {
		ff, err := market.LoadFileFetcher(dataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load market data: %w", err)
		}
		return ff, nil
	}

	var fetcher market.Fetcher = market.NewResilientFetcher(
		market.NewBinanceFetcher(cfg.Market.BaseURL, cfg.Market.Timeout),
		cfg.Market.Resilient(),
		rt.logger,
	)

	if rt.cache != nil {
		cached := market.NewCachedFetcher(fetcher, rt.cache, cfg.Redis.FrameTTL, rt.logger)
		cached.OnLookup = func(hit bool) {
			rt.logger.Debug("Frame cache lookup", "hit", hit)
		}
		fetcher = cached
	}
	return fetcher, nil
}

// Close releases the cache and database connections
func (rt *runtime) Close() {
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("Failed to close cache", "error", err)
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
