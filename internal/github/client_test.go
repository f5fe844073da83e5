package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rotator, err := NewRotator([]string{"tok-1", "tok-2"}, 0, nil)
	require.NoError(t, err)

	client := NewClient(Config{
		BaseURL:  srv.URL,
		Timeout:  5 * time.Second,
		Cooldown: time.Millisecond,
	}, rotator, nil)
	return client, srv
}

func TestGetUser(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/users/octocat", r.URL.Path)
		fmt.Fprint(w, `{"login":"octocat","name":"The Octocat","followers":42,"hireable":true}`)
	}))

	user, err := client.GetUser(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "The Octocat", user.Name)
	assert.Equal(t, 42, user.Followers)
	require.NotNil(t, user.Hireable)
	assert.True(t, *user.Hireable)
}

func TestGetUserNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetUser(context.Background(), "ghost")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.Login)
	assert.True(t, IsPermanent(err))
}

func TestGetQuotaExhausted(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Hour).Unix()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.GetUser(context.Background(), "anyone")
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, reset, qe.ResetAt.Unix())
	assert.True(t, IsQuota(err))
	assert.False(t, IsPermanent(err))
}

func TestOrdinaryForbiddenIsNotQuota(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "57")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.GetUser(context.Background(), "anyone")
	assert.False(t, IsQuota(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestSearchUsersPagesAndStopsAtCeiling(t *testing.T) {
	t.Parallel()

	const total = 250
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := (page - 1) * searchPageSize
		fmt.Fprint(w, `{"total_count":`+strconv.Itoa(total)+`,"items":[`)
		for i := 0; i < searchPageSize && start+i < total; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"login":"user%d"}`, start+i)
		}
		fmt.Fprint(w, `]}`)
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rotator, err := NewRotator([]string{"tok"}, 0, nil)
	require.NoError(t, err)

	client := NewClient(Config{BaseURL: srv.URL, MaxSearchResults: 150}, rotator, nil)

	var visited []string
	err = client.SearchUsers(context.Background(), "location:Kyiv", func(login string) bool {
		visited = append(visited, login)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, visited, 150, "paging must stop at the per-query ceiling")
	assert.Equal(t, "user0", visited[0])
	assert.Equal(t, "user149", visited[len(visited)-1])
}

func TestSearchUsersStopsWhenVisitorDeclines(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"total_count":3,"items":[{"login":"a"},{"login":"b"},{"login":"c"}]}`)
	}))

	var visited []string
	err := client.SearchUsers(context.Background(), "q", func(login string) bool {
		visited = append(visited, login)
		return len(visited) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestListRecentRepos(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/octocat/repos", r.URL.Path)
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `[{"name":"hello","stargazers_count":7,"language":"Go"}]`)
	}))

	repos, err := client.ListRecentRepos(context.Background(), "octocat", 5)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "hello", repos[0].Name)
	assert.Equal(t, 7, repos[0].Stars)
	assert.Equal(t, "Go", repos[0].Language)
}

func TestHandleQuotaRotatesToken(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	require.Equal(t, "tok-1", client.rotator.Current())
	require.NoError(t, client.HandleQuota(context.Background(), &QuotaError{}))
	assert.Equal(t, "tok-2", client.rotator.Current())
}

func TestHandleQuotaSingleTokenWaitsForReset(t *testing.T) {
	t.Parallel()

	rotator, err := NewRotator([]string{"only"}, 0, nil)
	require.NoError(t, err)
	client := NewClient(Config{BaseURL: "http://unused", Cooldown: time.Hour}, rotator, nil)

	// Reset already in the past: the wait returns without touching the
	// hour-long fixed cooldown.
	start := time.Now()
	err = client.HandleQuota(context.Background(), &QuotaError{ResetAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"remaining":4321,"reset":1700000000},"search":{"limit":30,"remaining":28,"reset":1700000000}}}`)
	}))

	info, err := client.RateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4321, info.Core.Remaining)
	assert.Equal(t, 30, info.Search.Limit)
}

func TestIsPermanentClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPermanent(&StatusError{StatusCode: 422}))
	assert.False(t, IsPermanent(&StatusError{StatusCode: 500}))
	assert.False(t, IsPermanent(&StatusError{StatusCode: 403}))
	assert.False(t, IsPermanent(&StatusError{StatusCode: 429}))
	assert.False(t, IsPermanent(errors.New("dial tcp: network unreachable")))
}
