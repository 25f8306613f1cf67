package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/acme-retail/tablesync/internal/api"
	"github.com/acme-retail/tablesync/internal/config"
	"github.com/acme-retail/tablesync/internal/imagefetch"
	"github.com/acme-retail/tablesync/internal/objectstore"
	"github.com/acme-retail/tablesync/internal/progressbus"
	"github.com/acme-retail/tablesync/internal/repository"
	"github.com/acme-retail/tablesync/internal/retry"
	"github.com/acme-retail/tablesync/internal/scheduler"
	"github.com/acme-retail/tablesync/internal/syncengine"
	"github.com/acme-retail/tablesync/internal/upstream"
)

// app bundles every collaborator built from resolved configuration, so
// serve/migrate/sync commands share one assembly path instead of each
// re-deriving it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	repo     *repository.Store
	objStore *objectstore.MinioStore
	engine   *syncengine.Engine
	bus      *progressbus.Bus
	server   *api.Server
	sched    *scheduler.Scheduler
}

// buildApp wires config into every component, per DESIGN.md's domain
// stack table. close() releases repo/engine resources; callers must
// defer it.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repo, err := repository.Open(ctx, cfg.DocumentStoreURI, logger)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	objStore, err := objectstore.NewMinioStore(objectstore.Config{
		Endpoint:  cfg.ObjectStoreEndpoint,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Bucket:    cfg.ObjectStoreBucket,
		UseSSL:    cfg.ObjectStoreUseSSL,
	}, logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	tokenSource := upstream.NewClientCredentialsTokenSource(ctx, cfg.Upstream.TokenURL, cfg.Upstream.AppID, cfg.Upstream.Secret)
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.TableID, cfg.Upstream.AppToken, httpClient, tokenSource, logger)

	upstreamBucket := retry.NewTokenBucket(cfg.UpstreamRPS)
	imageBucket := retry.NewTokenBucket(cfg.ImageRPS)

	fetcher := imagefetch.NewFetcher(upstreamClient, objStore, repo, imagefetch.Options{
		Concurrency:    cfg.ConcurrentImages,
		RetryAttempts:  cfg.RetryAttempts,
		UpstreamBucket: upstreamBucket,
		DownloadBucket: imageBucket,
		Logger:         logger,
	})

	bus := progressbus.New(0)

	engine := syncengine.New(syncengine.Config{
		Repository:           repo,
		Upstream:             upstreamClient,
		Fetcher:              fetcher,
		Bus:                  bus,
		UpstreamBucket:       upstreamBucket,
		DefaultBatchSize:     cfg.BatchSize,
		DefaultRetryAttempts: cfg.RetryAttempts,
		OperationDeadline:    cfg.OperationDeadline,
		Logger:               logger,
	})

	sched, err := scheduler.New(scheduler.Config{
		Engine:          engine,
		IncrementalCron: cfg.ScheduleIncrementalCron,
		FullCron:        cfg.ScheduleFullCron,
		ValidationCron:  cfg.ScheduleValidationCron,
		Timezone:        cfg.Timezone,
		Logger:          logger,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("building scheduler: %w", err)
	}

	server := api.New(api.Config{
		Engine: engine,
		Bus:    bus,
		Dependencies: map[string]interface{ Ping(context.Context) error }{
			"documentStore": repo,
			"objectStore":   objStore,
			"upstream":      upstreamClient,
		},
		SchedulerHealthy: sched.Healthy,
		Logger:           logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		objStore: objStore,
		engine:   engine,
		bus:      bus,
		server:   server,
		sched:    sched,
	}, nil
}

// close releases the document store handle and waits for any in-flight
// sync run to observe cancellation. Callers cancel the run's context
// (e.g. via shutdownContext) before calling close.
func (a *app) close() {
	a.engine.Close()
	a.repo.Close()
}
