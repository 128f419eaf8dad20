package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"cryptolens/config"
	"cryptolens/logger"
	"cryptolens/normalizer"
	"cryptolens/processor"
	"cryptolens/reader/bybit"
	"cryptolens/reader/coingecko"
	"cryptolens/storage"
	"cryptolens/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	path := config.ResolveConfigPath(*configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log.WithFields(logger.Fields{
		"service":     cfg.Cryptolens.Name,
		"version":     cfg.Cryptolens.Version,
		"environment": config.AppEnvironment(),
		"config":      path,
		"run_id":      runID,
	}).Info("starting cryptolens")

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}

	loc, err := normalizer.LoadLocation(cfg.Cache.Timezone)
	if err != nil {
		log.WithError(err).Error("Failed to load timezone")
		return 1
	}

	var mirror storage.Mirror
	if cfg.Storage.S3.Enabled {
		m, err := storage.NewS3Mirror(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to create S3 mirror")
			return 1
		}
		mirror = m
	} else {
		log.WithComponent("main").Info("S3 storage disabled; snapshots stay local")
	}

	var exporter processor.Exporter
	if cfg.Report.Enabled {
		exporter = writer.NewReportWriter(cfg)
	}

	pipeline := processor.NewPipeline(
		cfg,
		bybit.NewClient(cfg, loc),
		coingecko.NewClient(cfg, loc),
		storage.NewStore(cfg, loc, mirror),
		exporter,
	)

	res, err := pipeline.Run(ctx)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"run_id": runID}).Error("run failed")
		return 1
	}

	log.WithFields(logger.Fields{
		"run_id":          runID,
		"refreshed":       res.Refreshed,
		"coins":           len(res.Coins),
		"categories":      len(res.Categories),
		"coins_path":      res.CoinsPath,
		"categories_path": res.CategoriesPath,
	}).Info("cryptolens finished")
	return 0
}
