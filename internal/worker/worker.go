// Package worker implements the claim-and-process loop shared by the
// profile and enhancement stages. A worker repeatedly claims a bounded
// batch of work items from the store, processes each with bounded
// retries, and records the outcome. Multiple worker processes coordinate
// only through the store's transactional claim primitive.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/model"
)

// Stage is one pipeline phase driven by the claim loop. Process fetches
// and commits a single work item; commit-phase failures must be wrapped
// in *CommitError so the loop can return the item to the claimable pool
// instead of burning a retry.
type Stage interface {
	Name() string
	Source() model.Status
	Target() model.Status
	Process(ctx context.Context, username string) error
}

// CommitError marks a failure in the commit step (not the fetch). The
// loop responds by recording a retry back to the source status, making
// the item reclaimable by any worker.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit: %v", e.Err) }
func (e *CommitError) Unwrap() error { return e.Err }

// Store is the subset of the repository the loop needs.
type Store interface {
	CountByStatus(ctx context.Context, status model.Status) (int, error)
	ClaimBatch(ctx context.Context, from model.Status, limit int, owner string, staleAfter time.Duration) ([]string, error)
	RecordFailure(ctx context.Context, username, errMsg string) error
	RecordRetry(ctx context.Context, username, errMsg string, backTo model.Status) (int, error)
}

// QuotaHandler absorbs a quota-exhaustion signal, typically by rotating
// credentials and cooling down.
type QuotaHandler interface {
	HandleQuota(ctx context.Context, quotaErr error) error
}

// Classifier sorts a processing error into one of the retry classes.
type Classifier func(err error) ErrClass

// ErrClass drives the loop's reaction to a processing error.
type ErrClass int

const (
	// ClassTransient errors are retried with backoff, counted against the
	// retry budget.
	ClassTransient ErrClass = iota
	// ClassQuota errors trigger credential rotation and cooldown; they do
	// not consume the retry budget.
	ClassQuota
	// ClassPermanent errors fail the item immediately.
	ClassPermanent
)

// Metrics is the outcome sink the loop reports to.
type Metrics interface {
	Processed(stage string)
	Succeeded(stage string)
	Failed(stage string)
	Retried(stage string)
	RateLimited(stage string)
}

// Config controls loop behavior.
type Config struct {
	// OwnerID identifies this worker instance in claim rows.
	OwnerID string
	// BatchSize bounds each claim.
	BatchSize int
	// Target stops the loop once this many items sit in the stage's
	// target status. Zero means run until no work remains.
	Target int
	// MaxRetries bounds fetch attempts per item.
	MaxRetries int
	// RetryDelay is the base delay between attempts.
	RetryDelay time.Duration
	// ExponentialBackoff doubles the delay per failed attempt.
	ExponentialBackoff bool
	// ItemDelay paces successive items within a batch.
	ItemDelay time.Duration
	// StaleTimeout ages out claims from dead workers.
	StaleTimeout time.Duration
}

// Worker runs one stage's claim-and-process loop.
type Worker struct {
	stage    Stage
	store    Store
	quota    QuotaHandler
	classify Classifier
	metrics  Metrics
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(stage Stage, store Store, quota QuotaHandler, classify Classifier, m Metrics, cfg Config, logger *zap.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		stage:    stage,
		store:    store,
		quota:    quota,
		classify: classify,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With(zap.String("stage", stage.Name()), zap.String("owner", cfg.OwnerID)),
	}
}

// Run claims and processes batches until the target count is reached, no
// claimable work remains, or the context is cancelled. On cancellation
// the in-flight item is finished before returning so its commit is never
// cut in half; anything still claimed ages out via stale release.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if w.cfg.Target > 0 {
			done, err := w.store.CountByStatus(ctx, w.stage.Target())
			if err != nil {
				return fmt.Errorf("count %s: %w", w.stage.Target(), err)
			}
			if done >= w.cfg.Target {
				w.logger.Info("target reached", zap.Int("count", done), zap.Int("target", w.cfg.Target))
				return nil
			}
		}

		claimed, err := w.store.ClaimBatch(ctx, w.stage.Source(), w.cfg.BatchSize, w.cfg.OwnerID, w.cfg.StaleTimeout)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		if len(claimed) == 0 {
			w.logger.Info("no claimable work remaining")
			return nil
		}

		for i, username := range claimed {
			if i > 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := w.pace(ctx); err != nil {
					return err
				}
			}
			w.processItem(ctx, username)
		}
	}
}

// processItem runs one item through the bounded retry loop. Errors never
// escape: every outcome is recorded against the item so the batch loop
// continues.
func (w *Worker) processItem(ctx context.Context, username string) {
	w.metrics.Processed(w.stage.Name())
	log := w.logger.With(zap.String("username", username))

	attempt := 0
	for {
		err := w.stage.Process(ctx, username)
		if err == nil {
			w.metrics.Succeeded(w.stage.Name())
			return
		}

		var commitErr *CommitError
		if errors.As(err, &commitErr) {
			// The fetch worked but the commit did not; hand the item back
			// so any worker (including this one) can re-claim it.
			count, rerr := w.store.RecordRetry(ctx, username, err.Error(), w.stage.Source())
			if rerr != nil {
				log.Error("record retry failed", zap.Error(rerr))
			}
			log.Warn("commit failed, item returned for re-claim",
				zap.Int("retry_count", count), zap.Error(err))
			// Not a terminal failure: the item will be re-claimed.
			w.metrics.Retried(w.stage.Name())
			return
		}

		switch w.classify(err) {
		case ClassQuota:
			w.metrics.RateLimited(w.stage.Name())
			log.Warn("quota exhausted, rotating credential", zap.Error(err))
			if qerr := w.quota.HandleQuota(ctx, err); qerr != nil {
				// Cancelled mid-cooldown; leave the claim to age out.
				log.Warn("quota cooldown aborted", zap.Error(qerr))
				return
			}
			continue

		case ClassPermanent:
			if ferr := w.store.RecordFailure(ctx, username, err.Error()); ferr != nil {
				log.Error("record failure failed", zap.Error(ferr))
			}
			w.metrics.Failed(w.stage.Name())
			return

		default: // transient
			attempt++
			w.metrics.Retried(w.stage.Name())
			if attempt >= w.cfg.MaxRetries {
				if ferr := w.store.RecordFailure(ctx, username, err.Error()); ferr != nil {
					log.Error("record failure failed", zap.Error(ferr))
				}
				log.Warn("retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
				w.metrics.Failed(w.stage.Name())
				return
			}
			log.Warn("attempt failed, backing off",
				zap.Int("attempt", attempt),
				zap.Int("max", w.cfg.MaxRetries),
				zap.Error(err))
			if serr := w.sleep(ctx, w.backoff(attempt)); serr != nil {
				return
			}
		}
	}
}

// backoff returns the wait before the next attempt; attempt counts
// completed failures starting at 1.
func (w *Worker) backoff(attempt int) time.Duration {
	if !w.cfg.ExponentialBackoff {
		return w.cfg.RetryDelay
	}
	return w.cfg.RetryDelay * time.Duration(1<<(attempt-1))
}

func (w *Worker) pace(ctx context.Context) error {
	return w.sleep(ctx, w.cfg.ItemDelay)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
