// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"os"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/blob"
	blobgcs "github.com/JakeFAU/devharvest/internal/blob/gcs"
	bloblocal "github.com/JakeFAU/devharvest/internal/blob/local"
	blobmemory "github.com/JakeFAU/devharvest/internal/blob/memory"
	"github.com/JakeFAU/devharvest/internal/config"
	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/logging"
	"github.com/JakeFAU/devharvest/internal/metrics"
	"github.com/JakeFAU/devharvest/internal/publish"
	pubmemory "github.com/JakeFAU/devharvest/internal/publish/memory"
	pubgcp "github.com/JakeFAU/devharvest/internal/publish/pubsub"
	"github.com/JakeFAU/devharvest/internal/store"
)

// App holds the shared services for one process.
type App struct {
	Cfg       config.Config
	Logger    *zap.Logger
	Store     *store.Postgres
	Metrics   *metrics.Collector
	Client    *github.Client
	Archive   blob.Store
	Publisher publish.Publisher

	ownerID string
	closers []func()
}

// New builds the service container. It fails fast if any configured
// service cannot be initialized; the GitHub client is only constructed
// when tokens are configured, since not every command talks to the API.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{
		Cfg:     cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		ownerID: instanceID(),
	}

	a.Store, err = store.New(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
		ConnectRetries:  cfg.DB.ConnectRetries,
		ConnectBackoff:  cfg.DB.ConnectBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.Store.SetStaleObserver(a.Metrics)
	a.closers = append(a.closers, a.Store.Close)

	if len(cfg.GitHub.Tokens) > 0 {
		rotator, err := github.NewRotator(cfg.GitHub.Tokens, cfg.GitHub.QuotaResetMargin, logger)
		if err != nil {
			return nil, fmt.Errorf("init rotator: %w", err)
		}
		a.Client = github.NewClient(github.Config{
			BaseURL:           cfg.GitHub.BaseURL,
			Timeout:           cfg.GitHub.Timeout,
			RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
			Cooldown:          cfg.GitHub.Cooldown,
			MaxSearchResults:  cfg.Discovery.MaxSearchResults,
		}, rotator, logger)
		logger.Info("github client initialized", zap.Int("tokens", rotator.Size()))
	}

	if err := a.initArchive(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}

	logger.Info("application services initialized", zap.String("instance", a.ownerID))
	return a, nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.Cfg.Archive.Provider {
	case "", "none":
		return nil
	case "memory":
		a.Archive = blobmemory.New()
	case "local":
		s, err := bloblocal.New(a.Cfg.Archive.BaseDir)
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.Archive = s
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		s, err := blobgcs.New(client, a.Cfg.Archive.Bucket)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.Archive = s
		a.closers = append(a.closers, func() {
			if err := s.Close(); err != nil {
				a.Logger.Warn("close gcs archive", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown archive provider %q", a.Cfg.Archive.Provider)
	}
	a.Logger.Info("snapshot archive enabled", zap.String("provider", a.Cfg.Archive.Provider))
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.Cfg.Publish.Provider {
	case "", "none":
		return nil
	case "memory":
		a.Publisher = pubmemory.New()
	case "pubsub":
		if a.Cfg.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id is required for pubsub")
		}
		client, err := gcpubsub.NewClient(ctx, a.Cfg.Publish.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		p, err := pubgcp.New(client)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.Publisher = p
		a.closers = append(a.closers, func() {
			if err := p.Close(); err != nil {
				a.Logger.Warn("close pubsub publisher", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown publish provider %q", a.Cfg.Publish.Provider)
	}
	a.Logger.Info("event publishing enabled", zap.String("provider", a.Cfg.Publish.Provider))
	return nil
}

// OwnerID identifies this worker instance in claim rows.
func (a *App) OwnerID() string {
	return a.ownerID
}

// Close shuts down services in reverse initialization order.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}

// instanceID builds a unique claim-owner id: hostname, pid and a random
// suffix so restarts on the same host never collide.
func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
