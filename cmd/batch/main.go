package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/batch"
	"github.com/rfranks/ai-chat-ehr/internal/cache"
	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/engine"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
	"github.com/rfranks/ai-chat-ehr/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input record dump (JSONL or Parquet)")
		exportPath = flag.String("export", "", "Optional Parquet export path for anonymized rows")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		dryRun     = flag.Bool("dry-run", false, "Write SQL statements instead of inserting into the database")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s --input records.jsonl [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input patients.jsonl --dry-run\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input patients.parquet --export anonymized.parquet --workers 8\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Storage.Mode = "sqlfile"
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting batch anonymizer",
		zap.String("input", *inputFile),
		zap.String("storage_mode", cfg.Storage.Mode))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling batch run")
		cancel()
	}()

	detector, err := phi.New(cfg.Detector, log.WithComponent("phi"))
	if err != nil {
		log.Fatal("Failed to create PHI detector", zap.Error(err))
	}
	if cfg.Cache.Enabled {
		if spanCache, err := cache.NewSpanCache(cfg.Cache, log.WithComponent("cache").Logger); err != nil {
			log.Warn("Span cache unavailable, continuing without it", zap.Error(err))
		} else {
			detector.WithCache(spanCache)
			defer spanCache.Close()
		}
	}

	eng, err := engine.New(cfg.Privacy, detector, log)
	if err != nil {
		log.Fatal("Failed to create anonymization engine", zap.Error(err))
	}

	storage, err := store.New(cfg.Storage, log.WithComponent("store").Logger)
	if err != nil {
		log.Fatal("Failed to create storage", zap.Error(err))
	}
	defer storage.Close()

	batchConfig := batch.DefaultConfig()
	batchConfig.WorkerCount = *workers
	batchConfig.ExportPath = *exportPath

	pipeline := batch.NewPipeline(eng, storage, batchConfig, log.WithComponent("batch").Logger)
	result, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Batch processing failed", zap.Error(err))
	}

	log.Info("Batch run finished",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("total_transformations", result.TotalTransformations),
		zap.String("export_path", result.ExportPath),
	)
}
