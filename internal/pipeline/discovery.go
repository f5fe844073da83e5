// Package pipeline contains the stage drivers: username discovery,
// profile fetch and social enhancement. Each stage is a thin layer that
// reads from one status, calls the API client and writes through the
// repository; the scheduling and failure handling live in the worker
// loop and the store.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/model"
)

// StageDiscovery is the metrics label for the discovery stage.
const StageDiscovery = "discovery"

// Searcher is the slice of the GitHub client discovery needs.
type Searcher interface {
	SearchUsers(ctx context.Context, query string, visit func(login string) bool) error
	HandleQuota(ctx context.Context, quotaErr error) error
}

// InsertStore is the slice of the repository discovery needs.
type InsertStore interface {
	InsertBatch(ctx context.Context, usernames []string) (int64, error)
	CountByStatus(ctx context.Context, status model.Status) (int, error)
}

// DiscoveryMetrics is the outcome sink for discovery.
type DiscoveryMetrics interface {
	Processed(stage string)
	SucceededN(stage string, n int64)
	Failed(stage string)
	RateLimited(stage string)
}

// DiscoveryConfig controls the discovery run.
type DiscoveryConfig struct {
	Target     int
	BatchSize  int
	Locations  []string
	Years      []int
	QueryDelay time.Duration
}

// Discovery searches for usernames by location and account-creation year
// and inserts them with INITIAL status. Duplicate identifiers are no-ops,
// so re-running discovery is safe.
type Discovery struct {
	client  Searcher
	store   InsertStore
	metrics DiscoveryMetrics
	cfg     DiscoveryConfig
	logger  *zap.Logger
}

// NewDiscovery constructs the discovery stage.
func NewDiscovery(client Searcher, store InsertStore, m DiscoveryMetrics, cfg DiscoveryConfig, logger *zap.Logger) *Discovery {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{client: client, store: store, metrics: m, cfg: cfg, logger: logger}
}

// Run walks the location x year query grid until the target INITIAL count
// is reached or the grid is exhausted. Each query is bounded by the API's
// per-query result ceiling; the client never pages past it.
func (d *Discovery) Run(ctx context.Context) error {
	total := len(d.cfg.Locations) * len(d.cfg.Years)
	d.logger.Info("starting username discovery",
		zap.Int("target", d.cfg.Target),
		zap.Int("queries", total))

	searches := 0
	for _, location := range d.cfg.Locations {
		for _, year := range d.cfg.Years {
			if err := ctx.Err(); err != nil {
				return err
			}
			reached, err := d.targetReached(ctx)
			if err != nil {
				return err
			}
			if reached {
				d.logger.Info("discovery target reached", zap.Int("target", d.cfg.Target))
				return nil
			}

			searches++
			query := fmt.Sprintf("location:%s created:%d-01-01..%d-12-31 type:user", location, year, year)
			found, err := d.runQuery(ctx, query)
			if err != nil {
				if github.IsQuota(err) {
					d.metrics.RateLimited(StageDiscovery)
					if qerr := d.client.HandleQuota(ctx, err); qerr != nil {
						return qerr
					}
					continue
				}
				// Per-query failures never abort the run.
				d.logger.Error("search query failed",
					zap.String("query", query), zap.Error(err))
				d.metrics.Failed(StageDiscovery)
				continue
			}

			d.logger.Info("search query done",
				zap.Int("search", searches),
				zap.Int("of", total),
				zap.String("location", location),
				zap.Int("year", year),
				zap.Int("found", found))

			if err := d.pace(ctx); err != nil {
				return err
			}
		}
	}

	count, err := d.store.CountByStatus(ctx, model.StatusInitial)
	if err != nil {
		return fmt.Errorf("final count: %w", err)
	}
	d.logger.Info("discovery exhausted query grid", zap.Int("initial_count", count))
	return nil
}

// runQuery streams one search query into batched inserts. The batch is
// flushed before any error is surfaced so already-discovered usernames
// are never lost to a quota hit.
func (d *Discovery) runQuery(ctx context.Context, query string) (int, error) {
	batch := make([]string, 0, d.cfg.BatchSize)
	found := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := d.store.InsertBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		d.metrics.SucceededN(StageDiscovery, inserted)
		batch = batch[:0]
		return nil
	}

	var flushErr error
	searchErr := d.client.SearchUsers(ctx, query, func(login string) bool {
		d.metrics.Processed(StageDiscovery)
		found++
		batch = append(batch, login)
		if len(batch) >= d.cfg.BatchSize {
			if flushErr = flush(); flushErr != nil {
				return false
			}
			reached, err := d.targetReached(ctx)
			if err != nil {
				flushErr = err
				return false
			}
			if reached {
				return false
			}
		}
		return true
	})

	if err := flush(); err != nil {
		if flushErr == nil && searchErr == nil {
			return found, err
		}
		// The search error wins; the lost batch must still be visible.
		d.logger.Error("final batch insert failed",
			zap.String("query", query), zap.Error(err))
	}
	if flushErr != nil {
		return found, flushErr
	}
	return found, searchErr
}

func (d *Discovery) targetReached(ctx context.Context) (bool, error) {
	if d.cfg.Target <= 0 {
		return false, nil
	}
	count, err := d.store.CountByStatus(ctx, model.StatusInitial)
	if err != nil {
		return false, fmt.Errorf("count initial: %w", err)
	}
	return count >= d.cfg.Target, nil
}

func (d *Discovery) pace(ctx context.Context) error {
	if d.cfg.QueryDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(d.cfg.QueryDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
