package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/metrics"
	"github.com/JakeFAU/devharvest/internal/model"
	"github.com/JakeFAU/devharvest/internal/pipeline"
)

// fakeSearcher serves scripted logins per query. An entry in errs makes
// the matching query fail before yielding results.
type fakeSearcher struct {
	results    map[string][]string
	errs       map[string]error
	quotaCalls int
	queries    []string
}

func (s *fakeSearcher) SearchUsers(_ context.Context, query string, visit func(login string) bool) error {
	s.queries = append(s.queries, query)
	for _, login := range s.results[query] {
		if !visit(login) {
			return nil
		}
	}
	return s.errs[query]
}

func (s *fakeSearcher) HandleQuota(context.Context, error) error {
	s.quotaCalls++
	return nil
}

// fakeInsertStore accumulates inserted usernames, de-duplicating like the
// real table does.
type fakeInsertStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	order     []string
	insertErr error
}

func newFakeInsertStore() *fakeInsertStore {
	return &fakeInsertStore{seen: make(map[string]bool)}
}

func (s *fakeInsertStore) InsertBatch(_ context.Context, usernames []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	var inserted int64
	for _, u := range usernames {
		if s.seen[u] {
			continue
		}
		s.seen[u] = true
		s.order = append(s.order, u)
		inserted++
	}
	return inserted, nil
}

func (s *fakeInsertStore) CountByStatus(context.Context, model.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order), nil
}

func queryFor(location string, year int) string {
	return fmt.Sprintf("location:%s created:%d-01-01..%d-12-31 type:user", location, year, year)
}

func TestDiscoveryWalksGridAndInserts(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]string{
		queryFor("Kyiv", 2020): {"a", "b"},
		queryFor("Kyiv", 2021): {"b", "c"},
		queryFor("Lviv", 2020): {"d"},
		queryFor("Lviv", 2021): nil,
	}}
	st := newFakeInsertStore()

	d := pipeline.NewDiscovery(searcher, st, metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv", "Lviv"},
		Years:     []int{2020, 2021},
		BatchSize: 2,
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, searcher.queries, 4, "every grid cell is queried")
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, st.order,
		"duplicates across queries collapse")
}

func TestDiscoveryStopsAtTarget(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]string{
		queryFor("Kyiv", 2020): {"a", "b", "c", "d"},
		queryFor("Kyiv", 2021): {"e", "f"},
	}}
	st := newFakeInsertStore()

	d := pipeline.NewDiscovery(searcher, st, metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv"},
		Years:     []int{2020, 2021},
		Target:    3,
		BatchSize: 2,
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, searcher.queries, 1, "target reached inside the first query")
	assert.GreaterOrEqual(t, len(st.order), 3)
}

func TestDiscoveryQuotaRotatesAndContinues(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		results: map[string][]string{
			queryFor("Kyiv", 2021): {"a"},
		},
		errs: map[string]error{
			queryFor("Kyiv", 2020): &github.QuotaError{},
		},
	}
	st := newFakeInsertStore()

	d := pipeline.NewDiscovery(searcher, st, metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv"},
		Years:     []int{2020, 2021},
		BatchSize: 10,
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 1, searcher.quotaCalls)
	assert.Equal(t, []string{"a"}, st.order, "the run continues past the quota hit")
}

func TestDiscoveryQueryFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		results: map[string][]string{
			queryFor("Kyiv", 2021): {"a"},
		},
		errs: map[string]error{
			queryFor("Kyiv", 2020): errors.New("upstream hiccup"),
		},
	}
	st := newFakeInsertStore()

	d := pipeline.NewDiscovery(searcher, st, metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv"},
		Years:     []int{2020, 2021},
		BatchSize: 10,
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, searcher.queries, 2)
	assert.Equal(t, []string{"a"}, st.order)
}

func TestDiscoveryFinalFlushFailureIsLogged(t *testing.T) {
	t.Parallel()

	// The search yields logins and then hits the quota, so the trailing
	// batch is flushed under an existing search error. The failed insert
	// must not vanish behind the quota handling.
	core, logs := observer.New(zapcore.ErrorLevel)
	searcher := &fakeSearcher{
		results: map[string][]string{
			queryFor("Kyiv", 2020): {"a", "b"},
		},
		errs: map[string]error{
			queryFor("Kyiv", 2020): &github.QuotaError{},
		},
	}
	st := newFakeInsertStore()
	st.insertErr = errors.New("connection reset")

	d := pipeline.NewDiscovery(searcher, st, metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv"},
		Years:     []int{2020},
		BatchSize: 10,
	}, zap.New(core))

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, 1, searcher.quotaCalls, "the quota hit still reaches rotation")

	entries := logs.FilterMessage("final batch insert failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, queryFor("Kyiv", 2020), entries[0].ContextMap()["query"])
}

func TestDiscoveryCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := pipeline.NewDiscovery(&fakeSearcher{}, newFakeInsertStore(), metrics.New(), pipeline.DiscoveryConfig{
		Locations: []string{"Kyiv"},
		Years:     []int{2020},
	}, nil)

	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}
