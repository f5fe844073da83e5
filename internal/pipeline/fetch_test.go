package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/devharvest/internal/blob/memory"
	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/model"
	"github.com/JakeFAU/devharvest/internal/pipeline"
	pubmemory "github.com/JakeFAU/devharvest/internal/publish/memory"
	"github.com/JakeFAU/devharvest/internal/store"
	"github.com/JakeFAU/devharvest/internal/worker"
)

type fakeProfileClient struct {
	users    map[string]*github.User
	repos    map[string][]github.Repo
	userErr  error
	repoErr  error
	gotLimit int
}

func (c *fakeProfileClient) GetUser(_ context.Context, login string) (*github.User, error) {
	if c.userErr != nil {
		return nil, c.userErr
	}
	u, ok := c.users[login]
	if !ok {
		return nil, &github.NotFoundError{Login: login}
	}
	return u, nil
}

func (c *fakeProfileClient) ListRecentRepos(_ context.Context, login string, limit int) ([]github.Repo, error) {
	c.gotLimit = limit
	if c.repoErr != nil {
		return nil, c.repoErr
	}
	return c.repos[login], nil
}

type fakeProfileStore struct {
	committed []*model.Profile
	err       error
}

func (s *fakeProfileStore) CommitProfile(_ context.Context, profile *model.Profile) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.committed = append(s.committed, profile)
	return int64(len(s.committed)), nil
}

func octocat() *github.User {
	created := time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)
	return &github.User{
		Login:           "octocat",
		Name:            "The Octocat",
		Bio:             "reach me on t.me/octocat",
		Blog:            "https://octo.example.com",
		Location:        "Kyiv",
		TwitterUsername: "octo",
		Followers:       99,
		PublicRepos:     12,
		CreatedAt:       &created,
	}
}

func TestFetchProcessCommitsProfile(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{
		users: map[string]*github.User{"octocat": octocat()},
		repos: map[string][]github.Repo{"octocat": {
			{Name: "newest", Stars: 5, Language: "Go"},
			{Name: "older", Stars: 9, Language: "Rust"},
		}},
	}
	st := &fakeProfileStore{}
	archive := memory.New()
	publisher := pubmemory.New()

	fetch := pipeline.NewFetch(client, st, archive, publisher, pipeline.FetchConfig{
		TopRepos:      2,
		ArchivePrefix: "profiles",
		Topic:         "profile-events",
	}, nil)

	require.NoError(t, fetch.Process(context.Background(), "octocat"))
	require.Len(t, st.committed, 1)

	profile := st.committed[0]
	assert.Equal(t, "octocat", profile.Username)
	assert.Equal(t, "The Octocat", profile.Name)
	assert.Equal(t, 99, profile.Followers)
	assert.Equal(t, 2, client.gotLimit)

	require.Len(t, profile.Repositories, 2)
	assert.Equal(t, "newest", profile.Repositories[0].Name)
	assert.Equal(t, 0, profile.Repositories[0].Rank)
	assert.Equal(t, 1, profile.Repositories[1].Rank)

	// Bio and blog were classified into links.
	platforms := make(map[string]string)
	for _, l := range profile.SocialLinks {
		platforms[l.Platform] = l.URL
	}
	assert.Equal(t, "https://twitter.com/octo", platforms["twitter"])
	assert.Equal(t, "https://t.me/octocat", platforms["telegram"])
	assert.Equal(t, "https://octo.example.com", platforms["other_1"])

	// The snapshot side channel got a JSON copy of the profile.
	require.Equal(t, 1, archive.Len())
	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "profile-events", msgs[0].Topic)

	payload, err := json.Marshal(msgs[0].Payload)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"username":"octocat"`)
}

func TestFetchProcessWithoutSideChannels(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{users: map[string]*github.User{"octocat": octocat()}}
	st := &fakeProfileStore{}

	fetch := pipeline.NewFetch(client, st, nil, nil, pipeline.FetchConfig{}, nil)
	require.NoError(t, fetch.Process(context.Background(), "octocat"))
	assert.Len(t, st.committed, 1)
}

func TestFetchProcessUserNotFoundPassesThrough(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{users: map[string]*github.User{}}
	fetch := pipeline.NewFetch(client, &fakeProfileStore{}, nil, nil, pipeline.FetchConfig{}, nil)

	err := fetch.Process(context.Background(), "ghost")
	var nf *github.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, worker.ClassPermanent, pipeline.ClassifyError(err))
}

func TestFetchProcessRepoNotFoundStillCommits(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{
		users:   map[string]*github.User{"octocat": octocat()},
		repoErr: &github.NotFoundError{Login: "octocat"},
	}
	st := &fakeProfileStore{}

	fetch := pipeline.NewFetch(client, st, nil, nil, pipeline.FetchConfig{}, nil)
	require.NoError(t, fetch.Process(context.Background(), "octocat"))
	require.Len(t, st.committed, 1)
	assert.Empty(t, st.committed[0].Repositories)
}

func TestFetchProcessCommitFailureIsCommitError(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{users: map[string]*github.User{"octocat": octocat()}}
	st := &fakeProfileStore{err: errors.New("connection reset")}

	fetch := pipeline.NewFetch(client, st, nil, nil, pipeline.FetchConfig{}, nil)
	err := fetch.Process(context.Background(), "octocat")

	var ce *worker.CommitError
	assert.ErrorAs(t, err, &ce)
}

func TestFetchProcessRowVanishedIsNotCommitError(t *testing.T) {
	t.Parallel()

	client := &fakeProfileClient{users: map[string]*github.User{"octocat": octocat()}}
	st := &fakeProfileStore{err: store.ErrNotFound}

	fetch := pipeline.NewFetch(client, st, nil, nil, pipeline.FetchConfig{}, nil)
	err := fetch.Process(context.Background(), "octocat")

	var ce *worker.CommitError
	assert.False(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, worker.ClassPermanent, pipeline.ClassifyError(err))
}
