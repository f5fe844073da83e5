package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/model"
	"github.com/JakeFAU/devharvest/internal/store"
	"github.com/JakeFAU/devharvest/internal/worker"
)

// StageSocial is the metrics label for the enhancement stage.
const StageSocial = "social"

// Enricher produces the enhancement result for one developer: the set of
// social platforms whose links were verified. Richer enrichment (follower
// counts, additional profile discovery) plugs in here.
type Enricher interface {
	Enrich(ctx context.Context, username string, links []model.SocialLink) ([]string, error)
}

// EnhanceStore is the slice of the repository the enhancement stage needs.
type EnhanceStore interface {
	ListSocialLinks(ctx context.Context, username string) ([]model.SocialLink, error)
	CommitEnhancement(ctx context.Context, username string, verifiedPlatforms []string) error
}

// Enhance is the PROFILED -> ENHANCED stage. It runs the configured
// enricher over a developer's stored social links and commits the result.
type Enhance struct {
	store    EnhanceStore
	enricher Enricher
	logger   *zap.Logger
}

// NewEnhance constructs the enhancement stage.
func NewEnhance(st EnhanceStore, enricher Enricher, logger *zap.Logger) *Enhance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhance{store: st, enricher: enricher, logger: logger}
}

// Name implements worker.Stage.
func (e *Enhance) Name() string { return StageSocial }

// Source implements worker.Stage.
func (e *Enhance) Source() model.Status { return model.StatusProfiled }

// Target implements worker.Stage.
func (e *Enhance) Target() model.Status { return model.StatusEnhanced }

// Process enriches one developer and commits the ENHANCED transition.
func (e *Enhance) Process(ctx context.Context, username string) error {
	socialLinks, err := e.store.ListSocialLinks(ctx, username)
	if err != nil {
		return &worker.CommitError{Err: err}
	}

	verified, err := e.enricher.Enrich(ctx, username, socialLinks)
	if err != nil {
		return err
	}

	if err := e.store.CommitEnhancement(ctx, username, verified); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &worker.CommitError{Err: err}
	}

	e.logger.Debug("developer enhanced",
		zap.String("username", username),
		zap.Int("links", len(socialLinks)),
		zap.Int("verified", len(verified)))
	return nil
}
