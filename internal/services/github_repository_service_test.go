package services

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateStaleness(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		outcome  Outcome
		requests int
	}{
		{"fresh record served from store", 23 * time.Hour, OutcomeCached, 0},
		{"stale record refreshed once", 25 * time.Hour, OutcomeRefreshed, 1},
		{"exactly at ttl is stale", 24 * time.Hour, OutcomeRefreshed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.serveRepository(4007, "acme", "widgets")
			seeded := env.seedRepository("acme", "widgets", tt.age)

			repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")

			assert.Equal(t, tt.outcome, outcome)
			require.NotNil(t, repo)
			assert.Equal(t, seeded.ID, repo.ID)
			assert.Equal(t, tt.requests, env.hitCount("/repos/acme/widgets"))
		})
	}
}

func TestGetOrCreateRefreshUpdatesRecord(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")
	seeded := env.seedRepository("acme", "widgets", 48*time.Hour)

	repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")
	require.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, 1500, repo.StarsCount)
	assert.Equal(t, seeded.FetchCount+1, repo.FetchCount)
	require.NotNil(t, repo.LastFetchedAt)
	assert.WithinDuration(t, time.Now(), *repo.LastFetchedAt, time.Minute)

	stored, err := env.repoRepo.GetByID(seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500, stored.StarsCount)
	require.NotNil(t, stored.LicenseSPDXID)
	assert.Equal(t, "MIT", *stored.LicenseSPDXID)
}

func TestGetOrCreateServesStaleOnRefreshFailure(t *testing.T) {
	env := newTestEnv(t)
	env.handle("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "bad gateway"})
	})
	seeded := env.seedRepository("acme", "widgets", 30*time.Hour)

	repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")

	assert.Equal(t, OutcomeStale, outcome)
	require.NotNil(t, repo)
	assert.Equal(t, seeded.ID, repo.ID)
	assert.Equal(t, seeded.FetchCount, repo.FetchCount)
	assert.Equal(t, 1, env.hitCount("/repos/acme/widgets"))
}

func TestGetOrCreateMissing(t *testing.T) {
	t.Run("created then cached", func(t *testing.T) {
		env := newTestEnv(t)
		env.serveRepository(4007, "acme", "widgets")

		created, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")
		require.Equal(t, OutcomeCreated, outcome)
		assert.Equal(t, int64(4007), created.GithubID)
		assert.Equal(t, "acme/widgets", created.FullName)
		require.NotNil(t, created.PrimaryLanguage)
		assert.Equal(t, "Go", *created.PrimaryLanguage)

		cached, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")
		assert.Equal(t, OutcomeCached, outcome)
		assert.Equal(t, created.ID, cached.ID)
		assert.Equal(t, 1, env.hitCount("/repos/acme/widgets"))
	})

	t.Run("not found upstream", func(t *testing.T) {
		env := newTestEnv(t)

		repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "ghost")
		assert.Nil(t, repo)
		assert.Equal(t, OutcomeNotFound, outcome)
		assert.Equal(t, 0, env.countRows(`SELECT COUNT(*) FROM repositories`))
	})

	t.Run("rate limited upstream", func(t *testing.T) {
		env := newTestEnv(t)
		env.handle("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
			setRateHeaders(w, 0, time.Now().Add(time.Hour))
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "API rate limit exceeded"})
		})

		repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")
		assert.Nil(t, repo)
		assert.Equal(t, OutcomeRateLimited, outcome)
	})

	t.Run("malformed payload", func(t *testing.T) {
		env := newTestEnv(t)
		env.handle("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": 1, "name": "widgets"})
		})

		repo, outcome := env.repoService.GetOrCreate(context.Background(), "acme", "widgets")
		assert.Nil(t, repo)
		assert.Equal(t, OutcomeFailed, outcome)
	})
}

func TestRepositoryCreateConflictRereads(t *testing.T) {
	env := newTestEnv(t)
	seeded := env.seedRepository("acme", "widgets", time.Hour)

	created := github.Timestamp{Time: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo, outcome := env.repoService.create(&github.Repository{
		ID:        github.Int64(999),
		Name:      github.String("Widgets"),
		Owner:     &github.User{Login: github.String("ACME")},
		CreatedAt: &created,
	})

	assert.Equal(t, OutcomeCached, outcome)
	require.NotNil(t, repo)
	assert.Equal(t, seeded.ID, repo.ID)
	assert.Equal(t, 1, env.countRows(`SELECT COUNT(*) FROM repositories`))
}

func TestUpdateBountyStats(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")

	_, outcome := env.issueService.UpsertFromUpstream(context.Background(), newGHIssue(1, "Fix crash", "$150 bounty"), 0)
	require.Equal(t, OutcomeCreated, outcome)

	repo, err := env.repoService.GetByFullName("acme/widgets")
	require.NoError(t, err)

	repo, err = env.repoService.UpdateBountyStats(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.TotalBounties)
	assert.Equal(t, int64(15000), repo.TotalBountyAmount)
	assert.Equal(t, 1, repo.ActiveBounties)
}

func TestFetchTrending(t *testing.T) {
	env := newTestEnv(t)
	var mu sync.Mutex
	var query string
	lastQuery := func() string {
		mu.Lock()
		defer mu.Unlock()
		return query
	}
	env.handle("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.Query().Get("q")
		mu.Unlock()
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_count": 3,
			"items": []interface{}{
				repoPayload(1, "acme", "rockets", 900),
				repoPayload(2, "acme", "gadgets", 50),
				map[string]interface{}{"id": 3, "name": "orphan"},
			},
		})
	})
	env.repoService.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }

	repos, err := env.repoService.FetchTrending(context.Background(), "day", "Go")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "acme/rockets", repos[0].FullName)
	assert.Equal(t, "created:>2024-06-14 stars:>10 language:Go", lastQuery())

	_, err = env.repoService.FetchTrending(context.Background(), "month", "")
	require.NoError(t, err)
	assert.Equal(t, "created:>2024-05-16 stars:>10", lastQuery())
	assert.Equal(t, 2, env.countRows(`SELECT COUNT(*) FROM repositories`))

	listed, err := env.repoService.ListRepositories("Go", 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "acme/rockets", listed[0].FullName)
}

func TestFetchTrendingPropagatesUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.handle("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "unavailable"})
	})

	_, err := env.repoService.FetchTrending(context.Background(), "week", "")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, strings.Contains(err.Error(), "503"))
}
