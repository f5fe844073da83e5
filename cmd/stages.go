package cmd

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/app"
	"github.com/JakeFAU/devharvest/internal/linkcheck"
	"github.com/JakeFAU/devharvest/internal/pipeline"
	"github.com/JakeFAU/devharvest/internal/worker"
)

// buildDiscovery wires the discovery stage from the container.
func buildDiscovery(a *app.App) (*pipeline.Discovery, error) {
	if a.Client == nil {
		return nil, errors.New("discovery requires github.tokens to be configured")
	}
	cfg := pipeline.DiscoveryConfig{
		Target:     a.Cfg.Discovery.Target,
		BatchSize:  a.Cfg.Discovery.BatchSize,
		Locations:  a.Cfg.Discovery.Locations,
		Years:      a.Cfg.Discovery.Years(),
		QueryDelay: a.Cfg.Worker.ItemDelay,
	}
	return pipeline.NewDiscovery(a.Client, a.Store, a.Metrics, cfg, a.Logger), nil
}

// buildFetchWorker wires the profile fetch stage into a claim loop.
func buildFetchWorker(a *app.App) (*worker.Worker, error) {
	if a.Client == nil {
		return nil, errors.New("profile fetching requires github.tokens to be configured")
	}
	stage := pipeline.NewFetch(a.Client, a.Store, a.Archive, a.Publisher, pipeline.FetchConfig{
		TopRepos:      a.Cfg.Fetch.TopRepos,
		ArchivePrefix: a.Cfg.Archive.Prefix,
		Topic:         publishTopic(a),
	}, a.Logger)

	return worker.New(stage, a.Store, a.Client, pipeline.ClassifyError, a.Metrics,
		workerConfig(a, a.Cfg.Fetch.BatchSize, a.Cfg.Fetch.Target), a.Logger), nil
}

// buildEnhanceWorker wires the social enhancement stage into a claim
// loop. Enhancement talks to the open web, not the GitHub API, so it has
// no credential pool to rotate.
func buildEnhanceWorker(a *app.App) (*worker.Worker, error) {
	checker := linkcheck.New(linkcheck.Config{
		UserAgent: a.Cfg.Enhance.UserAgent,
		Timeout:   a.Cfg.Enhance.Timeout,
	}, a.Logger)
	stage := pipeline.NewEnhance(a.Store, checker, a.Logger)

	return worker.New(stage, a.Store, noQuota{}, pipeline.ClassifyError, a.Metrics,
		workerConfig(a, a.Cfg.Enhance.BatchSize, a.Cfg.Enhance.Target), a.Logger), nil
}

func workerConfig(a *app.App, batchSize, target int) worker.Config {
	return worker.Config{
		OwnerID:            a.OwnerID(),
		BatchSize:          batchSize,
		Target:             target,
		MaxRetries:         a.Cfg.Worker.MaxRetries,
		RetryDelay:         a.Cfg.Worker.RetryDelay,
		ExponentialBackoff: a.Cfg.Worker.ExponentialBackoff,
		ItemDelay:          a.Cfg.Worker.ItemDelay,
		StaleTimeout:       a.Cfg.Worker.StaleTimeout,
	}
}

func publishTopic(a *app.App) string {
	if a.Publisher == nil {
		return ""
	}
	return a.Cfg.Publish.Topic
}

// noQuota satisfies worker.QuotaHandler for stages without a credential
// pool. The classifier never yields a quota class for them, so this is
// unreachable in practice.
type noQuota struct{}

func (noQuota) HandleQuota(context.Context, error) error { return nil }

// logStageSummary prints the per-stage outcome counters at command exit.
func logStageSummary(a *app.App, stage string) {
	snap := a.Metrics.Snapshot(stage)
	a.Logger.Info("stage summary",
		zap.String("stage", stage),
		zap.Int64("processed", snap.Processed),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
		zap.Int64("retried", snap.Retried),
		zap.Int64("rate_limited", snap.RateLimited),
		zap.Float64("success_rate", snap.SuccessRate()),
		zap.Float64("per_hour", snap.PerHour()))
}
