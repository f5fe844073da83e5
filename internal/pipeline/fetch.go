package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/blob"
	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/links"
	"github.com/JakeFAU/devharvest/internal/model"
	"github.com/JakeFAU/devharvest/internal/publish"
	"github.com/JakeFAU/devharvest/internal/store"
	"github.com/JakeFAU/devharvest/internal/worker"
)

// StageProfile is the metrics label for the profile fetch stage.
const StageProfile = "profile"

// ProfileClient is the slice of the GitHub client the fetch stage needs.
type ProfileClient interface {
	GetUser(ctx context.Context, login string) (*github.User, error)
	ListRecentRepos(ctx context.Context, login string, limit int) ([]github.Repo, error)
}

// ProfileStore is the slice of the repository the fetch stage needs.
type ProfileStore interface {
	CommitProfile(ctx context.Context, profile *model.Profile) (int64, error)
}

// FetchConfig controls the profile fetch stage.
type FetchConfig struct {
	// TopRepos is how many most-recently-updated repositories are kept
	// per profile.
	TopRepos int
	// ArchivePrefix prefixes snapshot object paths when archiving.
	ArchivePrefix string
	// Topic names the event topic; empty disables publishing.
	Topic string
}

// Fetch is the INITIAL -> PROFILED stage: it resolves a claimed username
// into a full profile snapshot and commits it. Snapshot archiving and
// event publishing are optional side channels; their failures are logged
// but never fail the item, since the profile is already durable.
type Fetch struct {
	client    ProfileClient
	store     ProfileStore
	archive   blob.Store
	publisher publish.Publisher
	cfg       FetchConfig
	logger    *zap.Logger
}

// NewFetch constructs the profile fetch stage.
func NewFetch(client ProfileClient, st ProfileStore, archive blob.Store, publisher publish.Publisher, cfg FetchConfig, logger *zap.Logger) *Fetch {
	if cfg.TopRepos <= 0 {
		cfg.TopRepos = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetch{
		client:    client,
		store:     st,
		archive:   archive,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Name implements worker.Stage.
func (f *Fetch) Name() string { return StageProfile }

// Source implements worker.Stage.
func (f *Fetch) Source() model.Status { return model.StatusInitial }

// Target implements worker.Stage.
func (f *Fetch) Target() model.Status { return model.StatusProfiled }

// Process fetches the profile and commits it. Fetch-phase errors pass
// through for the worker to classify; commit-phase errors are wrapped in
// *worker.CommitError so the item returns to the claimable pool.
func (f *Fetch) Process(ctx context.Context, username string) error {
	user, err := f.client.GetUser(ctx, username)
	if err != nil {
		return err
	}

	repos, err := f.client.ListRecentRepos(ctx, username, f.cfg.TopRepos)
	if err != nil {
		// A vanished user between the two calls is permanent; let the
		// classifier see the original error either way.
		var nf *github.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		repos = nil
	}

	profile := buildProfile(user, repos)

	if _, err := f.store.CommitProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The row disappeared under us; nothing to retry.
			return err
		}
		return &worker.CommitError{Err: err}
	}

	f.archiveSnapshot(ctx, profile)
	f.publishCommitted(ctx, profile)
	return nil
}

func buildProfile(user *github.User, repos []github.Repo) *model.Profile {
	profile := &model.Profile{
		Username:        user.Login,
		Name:            user.Name,
		Email:           user.Email,
		Bio:             user.Bio,
		Location:        user.Location,
		Company:         user.Company,
		Blog:            user.Blog,
		TwitterUsername: user.TwitterUsername,
		Hireable:        user.Hireable,
		Followers:       user.Followers,
		Following:       user.Following,
		PublicRepos:     user.PublicRepos,
		PublicGists:     user.PublicGists,
		ProfileURL:      user.HTMLURL,
		AvatarURL:       user.AvatarURL,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
		SocialLinks:     links.Extract(user.Bio, user.Blog, user.TwitterUsername),
	}
	for rank, repo := range repos {
		profile.Repositories = append(profile.Repositories, model.Repository{
			Name:        repo.Name,
			Stars:       repo.Stars,
			Language:    repo.Language,
			URL:         repo.HTMLURL,
			Description: repo.Description,
			Rank:        rank,
		})
	}
	return profile
}

func (f *Fetch) archiveSnapshot(ctx context.Context, profile *model.Profile) {
	if f.archive == nil {
		return
	}
	data, err := json.Marshal(profile)
	if err != nil {
		f.logger.Warn("marshal snapshot failed",
			zap.String("username", profile.Username), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%d.json", f.cfg.ArchivePrefix, profile.Username, time.Now().UTC().Unix())
	uri, err := f.archive.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		f.logger.Warn("archive snapshot failed",
			zap.String("username", profile.Username), zap.Error(err))
		return
	}
	f.logger.Debug("archived profile snapshot",
		zap.String("username", profile.Username), zap.String("uri", uri))
}

func (f *Fetch) publishCommitted(ctx context.Context, profile *model.Profile) {
	if f.publisher == nil || f.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"username":     profile.Username,
		"followers":    profile.Followers,
		"public_repos": profile.PublicRepos,
		"location":     profile.Location,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := f.publisher.Publish(ctx, f.cfg.Topic, payload); err != nil {
		f.logger.Warn("publish profile event failed",
			zap.String("username", profile.Username), zap.Error(err))
	}
}
