package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/entities"
	"github.com/JonMunkholm/csvimport/internal/files"
	"github.com/JonMunkholm/csvimport/internal/logging"
	"github.com/JonMunkholm/csvimport/internal/operations"
	"github.com/JonMunkholm/csvimport/internal/stats"
	"github.com/JonMunkholm/csvimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"config", cfg.String(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		p, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	statsStore, err := openStatsStore(ctx, cfg, pool)
	if err != nil {
		return err
	}

	uploads, media, err := openStorage(ctx, cfg.Storage, cfg.Upload.Dir)
	if err != nil {
		return err
	}
	fileStore, err := files.NewStore(uploads, cfg.Upload.Encoding, cfg.Upload.MaxFileSize)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	// Entities and operation records live in Postgres when configured.
	var (
		entityStore interface {
			core.EntityStore
			entities.AttachmentRecorder
		}
		deps operations.Deps
	)
	if pool != nil {
		pgEntities := entities.NewPostgresStore(pool)
		if err := pgEntities.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("entity schema: %w", err)
		}
		repo := operations.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("operation schema: %w", err)
		}
		entityStore = pgEntities
		deps = operations.Deps{Products: repo, Contacts: repo}
	} else {
		slog.Warn("DATABASE_URL not set, imported records are kept in memory")
		repo := operations.NewMemoryRepository()
		entityStore = entities.NewMemoryStore()
		deps = operations.Deps{Products: repo, Contacts: repo}
	}

	var sideloader core.Sideloader
	if cfg.Sideload.Enabled {
		sideloader = entities.NewHTTPSideloader(media, entityStore, cfg.Sideload.Timeout, cfg.Sideload.MaxBytes)
	}

	registry := core.NewRegistry()
	if err := operations.RegisterAll(registry, deps); err != nil {
		return fmt.Errorf("register operations: %w", err)
	}
	for _, op := range registry.All() {
		slog.Debug("operation registered", "operation", op.Key().String(), "fields", len(op.Fields))
	}

	service := core.NewService(
		registry,
		fileStore,
		statsStore,
		core.NewResolver(entityStore, sideloader),
		core.NewBatchLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		core.ServiceConfig{
			DefaultBatchSize: cfg.Upload.BatchSize,
			DryRunErrorLimit: cfg.Import.DryRunErrorLimit,
			MaxStoredErrors:  cfg.Import.MaxStoredErrors,
			PreviewRows:      cfg.Import.PreviewRows,
			BatchTimeout:     cfg.Upload.Timeout,
		},
	)

	server := web.NewServer(service, fileStore, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if purger, ok := statsStore.(core.StatsPurger); ok {
		go func() {
			if err := core.StartStatsSweeper(jobCtx, purger, cfg.Stats.SweepSchedule); err != nil {
				slog.Error("stats sweeper stopped", "error", err)
			}
		}()
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight batches finish so their stats are persisted.
		limiterStatus := service.Limiter().Status()
		if limiterStatus.Active > 0 {
			slog.Info("waiting for batches to complete", "active", limiterStatus.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func openStatsStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (core.StatsStore, error) {
	switch strings.ToLower(cfg.Stats.Backend) {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("stats backend postgres needs DATABASE_URL")
		}
		store := stats.NewPostgresStore(pool, cfg.Stats.TTL)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("stats schema: %w", err)
		}
		return store, nil
	case "redis":
		client, err := stats.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return stats.NewRedisStore(client, cfg.Redis.Prefix, cfg.Stats.TTL), nil
	default:
		return stats.NewMemoryStore(cfg.Stats.TTL), nil
	}
}

// openStorage returns the storage for uploaded CSV files and for sideloaded media.
func openStorage(ctx context.Context, cfg config.StorageConfig, uploadDir string) (files.Storage, files.Storage, error) {
	if strings.EqualFold(cfg.Backend, "s3") {
		client, err := files.NewS3Client(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		uploads := files.NewS3Storage(client, cfg.Bucket, cfg.Prefix+"/uploads", cfg.Endpoint)
		media := files.NewS3Storage(client, cfg.Bucket, cfg.Prefix+"/media", cfg.Endpoint)
		slog.Info("using s3 storage", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return uploads, media, nil
	}

	uploads, err := files.NewLocalStorage(uploadDir, "")
	if err != nil {
		return nil, nil, fmt.Errorf("upload storage: %w", err)
	}
	media, err := files.NewLocalStorage(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("media storage: %w", err)
	}
	return uploads, media, nil
}
