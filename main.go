package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"immo-scraper/api"
	"immo-scraper/config"
	"immo-scraper/notify"
	"immo-scraper/scraper/portal"
	"immo-scraper/services"
	"immo-scraper/storage"
	"immo-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	logger.SetDebug(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Run failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== Immo Listing Aggregator starting ===")
	logger.Info("Config: searches: %d | pages: %d | concurrency: %d | rate: %v | dedupe: %s | tracking: %v",
		len(cfg.Searches), cfg.PagesToScrape, cfg.MaxConcurrency, cfg.RateLimit, cfg.DedupeLevel, cfg.TrackingMode)

	listingsPath := filepath.Join(cfg.DatasetDir, "listings.jsonl")
	changesPath := filepath.Join(cfg.DatasetDir, "changes.jsonl")

	dataset, err := storage.NewDataset(listingsPath)
	if err != nil {
		return fmt.Errorf("open listing dataset: %w", err)
	}
	defer dataset.Close()

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return fmt.Errorf("create CSV writer: %w", err)
	}
	defer csvWriter.Close()

	var pg *storage.PostgresStore
	if cfg.PostgresEnabled {
		pg, err = storage.NewPostgresStore(cfg.DSN())
		if err != nil {
			logger.Error("Make sure Docker is running: docker compose up -d")
			return fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		defer pg.Close()
	}

	var snapshots storage.SnapshotStore
	if cfg.TrackingMode || cfg.APIAddr != "" {
		store, closeStore, err := openSnapshotStore(ctx, cfg, pg)
		if err != nil {
			return err
		}
		defer closeStore()
		snapshots = store
	}

	fetcher, err := portal.NewBrowserFetcher(cfg.ChromeBin, cfg.PageTimeout, logger)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	retry := &utils.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBase,
		Multiplier: cfg.RetryMultiplier,
		MaxDelay:   cfg.RetryMax,
		Logger:     logger,
	}
	crawler := portal.NewCrawler(
		fetcher,
		portal.NewSelectorExtractor(cfg.Selectors),
		utils.NewRateLimiter(cfg.RateLimit, cfg.RateLimitPerMinute),
		retry,
		portal.CrawlerConfig{
			MaxPages:         cfg.PagesToScrape,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
		},
		logger,
	)

	var detector *services.ChangeDetector
	if cfg.TrackingMode {
		detector = services.NewChangeDetector(snapshots, logger)
	}

	agg := services.NewAggregator(
		services.AggregatorConfig{
			Searches:       cfg.Searches,
			MaxConcurrency: cfg.MaxConcurrency,
			MaxResults:     cfg.MaxResults,
			DedupeLevel:    cfg.DedupeLevel,
			TrackingMode:   cfg.TrackingMode,
		},
		crawler,
		services.NewCleaner(logger),
		services.NewDedupStore(cfg.SourcePriority, nil, logger),
		detector,
		logger,
	)
	agg.AddListingWriter(dataset)
	agg.AddListingWriter(csvWriter)
	if pg != nil {
		agg.AddListingWriter(pg)
	}

	if cfg.TrackingMode {
		changes, err := storage.NewDataset(changesPath)
		if err != nil {
			return fmt.Errorf("open change dataset: %w", err)
		}
		defer changes.Close()
		agg.AddEventWriter(changes)

		if len(cfg.KafkaBrokers) > 0 {
			kafka, err := notify.NewKafkaPublisher(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger)
			if err != nil {
				logger.Warn("Kafka disabled: %v", err)
			} else {
				defer kafka.Close()
				agg.AddNotifier(kafka)
			}
		}
		if cfg.WebhookURL != "" {
			agg.AddNotifier(notify.NewWebhook(cfg.WebhookURL, logger))
		}
	}

	var server *api.Server
	if cfg.APIAddr != "" {
		server = api.NewServer(snapshots, logger)
		go func() {
			if err := server.ListenAndServe(ctx, cfg.APIAddr); err != nil {
				logger.Error("API server stopped: %v", err)
			}
		}()
	}

	rep := &reporter{
		cfg:          cfg,
		pg:           pg,
		server:       server,
		insights:     services.NewInsightService(logger),
		logger:       logger,
		listingsPath: listingsPath,
		changesPath:  changesPath,
	}
	runOnce := func(ctx context.Context) error {
		res, err := agg.Run(ctx)
		if err != nil {
			logger.Error("Change tracking failed: %v", err)
		}
		if res != nil {
			rep.report(ctx, res)
		}
		return err
	}

	err = runOnce(ctx)
	if cfg.Schedule != "" {
		return services.NewScheduler(logger).Run(ctx, cfg.Schedule, func(ctx context.Context) {
			_ = runOnce(ctx)
		})
	}
	if server != nil {
		logger.Info("Serving results on %s until interrupted", cfg.APIAddr)
		<-ctx.Done()
	}
	return err
}

// reporter prints, archives and publishes the outcome of a run.
type reporter struct {
	cfg          *config.Config
	pg           *storage.PostgresStore
	server       *api.Server
	insights     *services.InsightService
	logger       *utils.Logger
	listingsPath string
	changesPath  string
}

func (r *reporter) report(ctx context.Context, res *services.RunResult) {
	if len(res.Listings) == 0 {
		r.logger.Warn("No listings were collected")
	}

	insightListings := res.Listings
	if r.pg != nil {
		if dbListings, err := r.pg.FetchAll(); err != nil {
			r.logger.Error("Failed to fetch listings from DB for insights: %v", err)
		} else {
			insightListings = dbListings
		}
	}
	r.insights.Print(r.insights.Generate(insightListings))
	fmt.Println(r.insights.RenderRunStats(res.Stats))

	if r.cfg.S3Bucket != "" {
		uploader, err := storage.NewS3Uploader(ctx, r.cfg.S3Bucket, r.cfg.S3Prefix, r.cfg.S3Region)
		if err == nil {
			err = uploader.UploadFiles(ctx, res.Stats.RunID, r.listingsPath, r.changesPath, r.cfg.CSVOutputPath)
		}
		if err != nil {
			r.logger.Error("S3 archive failed: %v", err)
		} else {
			r.logger.Info("Datasets archived to s3://%s (run %s)", r.cfg.S3Bucket, res.Stats.RunID)
		}
	}

	fmt.Printf("  Done. Feed → %s | CSV → %s\n\n", r.listingsPath, r.cfg.CSVOutputPath)

	if r.server != nil {
		r.server.SetRun(res.Stats, res.Listings)
	}
}

// openSnapshotStore returns the configured tracking snapshot backend and a
// function releasing it.
func openSnapshotStore(ctx context.Context, cfg *config.Config, pg *storage.PostgresStore) (storage.SnapshotStore, func(), error) {
	noop := func() {}
	switch cfg.SnapshotBackend {
	case config.SnapshotPostgres:
		return pg, noop, nil
	case config.SnapshotRedis:
		rs, err := storage.NewRedisSnapshotStore(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return rs, func() { _ = rs.Close() }, nil
	case config.SnapshotMongo:
		ms, err := storage.NewMongoSnapshotStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, noop, err
		}
		return ms, func() { _ = ms.Close(context.Background()) }, nil
	default:
		return storage.NewFileSnapshotStore(cfg.SnapshotPath), noop, nil
	}
}
