package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Photoroom/dataroom/internal/blob/minio"
	"github.com/Photoroom/dataroom/internal/config"
	"github.com/Photoroom/dataroom/internal/db/opensearch"
	"github.com/Photoroom/dataroom/internal/embedding"
	"github.com/Photoroom/dataroom/internal/filter"
	logpkg "github.com/Photoroom/dataroom/internal/logger"
	"github.com/Photoroom/dataroom/internal/metrics"
	catalogrepo "github.com/Photoroom/dataroom/internal/repository/catalog"
	imgrepo "github.com/Photoroom/dataroom/internal/repository/image"
	"github.com/Photoroom/dataroom/internal/schema"
	"github.com/Photoroom/dataroom/internal/usecase/bulk"
	"github.com/Photoroom/dataroom/internal/usecase/duplicate"
	imageuc "github.com/Photoroom/dataroom/internal/usecase/image"
	"github.com/Photoroom/dataroom/internal/version"
	"github.com/Photoroom/dataroom/internal/worker"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dataroom worker",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Strings("index_addresses", cfg.Index.Addresses),
		zap.String("index_name", cfg.Index.IndexName),
	)

	ctx := context.Background()

	// Search index
	store, err := opensearch.NewStore(opensearch.Config{
		Addresses: cfg.Index.Addresses,
		Username:  cfg.Index.Username,
		Password:  cfg.Index.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	if err := waitForIndex(ctx, store, 30*time.Second); err != nil {
		logger.Fatal("Index not ready", zap.Error(err))
	}
	logger.Info("Connected to search index")

	// Schema catalog
	poolCfg, err := pgxpool.ParseConfig(cfg.Catalog.DSN)
	if err != nil {
		logger.Fatal("Invalid catalog DSN", zap.Error(err))
	}
	poolCfg.MaxConns = int32(cfg.Catalog.MaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to create catalog pool", zap.Error(err))
	}
	defer pool.Close()

	catalogs := catalogrepo.New(pool)
	if err := catalogs.Migrate(ctx); err != nil {
		logger.Fatal("Catalog migration failed", zap.Error(err))
	}
	logger.Info("Connected to schema catalog")

	// Object storage
	blobs, err := minio.NewStore(minio.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("Failed to create blob store", zap.Error(err))
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		logger.Fatal("Failed to ensure bucket", zap.Error(err))
	}

	metrics.Register()

	// Wire the services
	registry := schema.NewRegistry(catalogs)
	images := imgrepo.New(store, registry, cfg.Index.IndexName).
		WithTimeout(time.Duration(cfg.Index.TimeoutSec) * time.Second)
	if err := images.EnsureIndex(ctx, cfg.Index.Shards); err != nil {
		logger.Fatal("Failed to ensure image index", zap.Error(err))
	}
	embedder := embedding.NewClient(embedding.Config{
		ImageURL:          cfg.Embedding.ImageURL,
		TextURL:           cfg.Embedding.TextURL,
		HeaderKey:         cfg.Embedding.HeaderKey,
		HeaderValue:       cfg.Embedding.HeaderValue,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
	filters := filter.New(registry, catalogs)
	lifecycle := imageuc.New(images, blobs, embedder, registry, catalogs, filters, logger)
	pipeline := bulk.New(images, catalogs, logger)
	detector := duplicate.New(images, pipeline).
		WithThreshold(cfg.Worker.DuplicateThreshold).
		WithNeighbors(cfg.Worker.DuplicateNeighbors)

	w := worker.New(images, lifecycle, detector, catalogs, logger).
		WithBatchSize(cfg.Worker.BatchSize).
		WithExcludedSources(cfg.Worker.ExcludedSources)

	// Metrics endpoint
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(cfg.Worker.IntervalSec) * time.Second
	worker.NewRunner(logger, w.Tasks(interval)...).Start(runCtx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Error("Final bulk flush failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
	logger.Info("Shut down")
}

// waitForIndex pings the index until it responds or the timeout passes.
func waitForIndex(ctx context.Context, store *opensearch.Store, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := store.Ping(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("index not reachable after %s: %w", timeout, err)
		}
		time.Sleep(time.Second)
	}
}
