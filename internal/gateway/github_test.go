package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// fakeSleeper records requested waits instead of sleeping.
type fakeSleeper struct {
	waits []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return nil
}

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler, discovery DiscoveryBackend) (*GitHubGateway, *fakeSleeper, *httptest.Server) {
	server := httptest.NewServer(handler)

	// Setup REST client to point to the mock server.
	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	graphqlClient := githubv4.NewEnterpriseClient(server.URL, server.Client())
	logger := zerolog.Nop()
	sleeper := &fakeSleeper{}
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }

	gateway := &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
		user:          "Octocat",
		discovery:     discovery,
		quota:         newQuotaGuard("test", 100, logger, now, sleeper.sleep, nil),
	}

	return gateway, sleeper, server
}

func TestGitHubGateway_ListRepositoriesREST(t *testing.T) {
	var serverURL string
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/repos", r.URL.Path)
		assert.Equal(t, "owner,collaborator,organization_member", r.URL.Query().Get("affiliation"))
		assert.Equal(t, "all", r.URL.Query().Get("visibility"))
		w.Header().Set("X-RateLimit-Remaining", "4000")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"full_name": "octo/c", "private": false}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/user/repos?page=2>; rel="next"`, serverURL))
		fmt.Fprint(w, `[{"full_name": "octo/a", "private": true}, {"full_name": "octo/b", "private": false}]`)
	}
	gateway, sleeper, server := setupTestGateway(t, http.HandlerFunc(handler), DiscoveryREST)
	defer server.Close()
	serverURL = server.URL

	refs, err := gateway.ListRepositories(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.RepositoryRef{
		{FullName: "octo/a", Private: true},
		{FullName: "octo/b"},
		{FullName: "octo/c"},
	}, refs)
	assert.Empty(t, sleeper.waits)
}

func TestGitHubGateway_ListRepositoriesREST_Unauthorized(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}
	gateway, _, server := setupTestGateway(t, http.HandlerFunc(handler), DiscoveryREST)
	defer server.Close()

	_, err := gateway.ListRepositories(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	assert.Contains(t, err.Error(), "failed to list repositories")
}

func TestGitHubGateway_ListRepositoriesGraphQL(t *testing.T) {
	var calls int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "ORGANIZATION_MEMBER")

		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"data":{"viewer":{"repositories":{"pageInfo":{"hasNextPage":true,"endCursor":"c1"},"nodes":[{"nameWithOwner":"octo/a","isPrivate":true}]}}}}`)
			return
		}
		assert.Contains(t, string(body), `"cursor":"c1"`)
		fmt.Fprint(w, `{"data":{"viewer":{"repositories":{"pageInfo":{"hasNextPage":false,"endCursor":"c2"},"nodes":[{"nameWithOwner":"octo/b","isPrivate":false}]}}}}`)
	}
	gateway, _, server := setupTestGateway(t, http.HandlerFunc(handler), DiscoveryGraphQL)
	defer server.Close()

	refs, err := gateway.ListRepositories(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.RepositoryRef{
		{FullName: "octo/a", Private: true},
		{FullName: "octo/b"},
	}, refs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGitHubGateway_FetchContributorStats(t *testing.T) {
	const statsBody = `[
		{"author": {"login": "someone"}, "weeks": [{"w": 1704067200, "a": 1, "d": 1, "c": 1}]},
		{"author": {"login": "octocat"}, "weeks": [{"w": 1704067200, "a": 100, "d": 20, "c": 3}, {"w": 1704672000, "a": 0, "d": 0, "c": 0}]}
	]`

	testCases := []struct {
		name           string
		etag           string
		handlerFunc    func(t *testing.T, w http.ResponseWriter, r *http.Request)
		expected       domain.StatsResult
		expectError    error
		expectedErrMsg string
	}{
		{
			name: "ready - filters weeks to the configured user",
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/octo/repo/stats/contributors", r.URL.Path)
				assert.Empty(t, r.Header.Get("If-None-Match"))
				w.Header().Set("ETag", `"v2"`)
				fmt.Fprint(w, statsBody)
			},
			expected: domain.StatsResult{
				Weeks: []domain.Week{
					{Start: 1704067200, Additions: 100, Deletions: 20},
					{Start: 1704672000},
				},
				ETag:   `"v2"`,
				Status: domain.StatsReady,
			},
		},
		{
			name: "ready - user without commits yields an empty slice",
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("ETag", `"v3"`)
				fmt.Fprint(w, `[{"author": {"login": "someone"}, "weeks": []}]`)
			},
			expected: domain.StatsResult{Weeks: []domain.Week{}, ETag: `"v3"`, Status: domain.StatsReady},
		},
		{
			name: "not modified keeps the supplied token",
			etag: `"v1"`,
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
				w.WriteHeader(http.StatusNotModified)
			},
			expected: domain.StatsResult{ETag: `"v1"`, Status: domain.StatsUnchanged},
		},
		{
			name: "accepted means the stats are still computing",
			etag: `"v1"`,
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("ETag", `"v9"`)
				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{}`)
			},
			expected: domain.StatsResult{ETag: `"v9"`, Status: domain.StatsComputing},
		},
		{
			name: "server error is surfaced as a transport error",
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Internal Server Error"}`)
			},
			expectError:    domain.ErrTransport,
			expectedErrMsg: "failed to fetch contributor stats",
		},
		{
			name: "missing repository is an authorization error",
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"message": "Not Found"}`)
			},
			expectError:    domain.ErrAuthorization,
			expectedErrMsg: "failed to fetch contributor stats",
		},
		{
			name: "no content is an unexpected status",
			handlerFunc: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			expectError:    domain.ErrUnexpectedStatus,
			expectedErrMsg: "204",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) { tc.handlerFunc(t, w, r) }
			gateway, _, server := setupTestGateway(t, http.HandlerFunc(handler), DiscoveryREST)
			defer server.Close()

			result, err := gateway.FetchContributorStats(context.Background(), "octo/repo", tc.etag)

			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, result)
			}
		})
	}
}

func TestGitHubGateway_FetchContributorStats_InvalidName(t *testing.T) {
	gateway, _, server := setupTestGateway(t, http.NotFoundHandler(), DiscoveryREST)
	defer server.Close()

	_, err := gateway.FetchContributorStats(context.Background(), "no-slash", "")
	assert.Error(t, err)
}

func TestGitHubGateway_QuotaFloorBlocksUntilReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	testCases := []struct {
		name      string
		remaining int
		status    int
		reset     int64
		wantWaits []time.Duration
	}{
		{name: "above floor does not wait", remaining: 500, status: http.StatusOK, reset: now.Unix() + 60},
		{name: "below floor waits until reset", remaining: 10, status: http.StatusOK, reset: now.Unix() + 60, wantWaits: []time.Duration{60 * time.Second}},
		{name: "reset in the past waits the minimum", remaining: 10, status: http.StatusOK, reset: now.Unix() - 5, wantWaits: []time.Duration{time.Second}},
		{name: "headers are read on computing responses too", remaining: 1, status: http.StatusAccepted, reset: now.Unix() + 30, wantWaits: []time.Duration{30 * time.Second}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Limit", "5000")
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tc.remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(tc.reset, 10))
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `[]`)
			}
			gateway, sleeper, server := setupTestGateway(t, http.HandlerFunc(handler), DiscoveryREST)
			defer server.Close()

			_, err := gateway.FetchContributorStats(context.Background(), "octo/repo", "")

			require.NoError(t, err)
			assert.Equal(t, tc.wantWaits, sleeper.waits)
		})
	}
}

func TestQuotaGuard_SameResetWaitedOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sleeper := &fakeSleeper{}
	var hooked []time.Duration
	guard := newQuotaGuard("test", 100, zerolog.Nop(), func() time.Time { return now }, sleeper.sleep, func(d time.Duration) {
		hooked = append(hooked, d)
	})

	resp := &github.Response{
		Response: &http.Response{Header: http.Header{"X-Ratelimit-Remaining": []string{"3"}}},
		Rate:     github.Rate{Remaining: 3, Reset: github.Timestamp{Time: now.Add(10 * time.Second)}},
	}

	require.NoError(t, guard.observe(context.Background(), resp))
	require.NoError(t, guard.observe(context.Background(), resp))

	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.waits)
	assert.Equal(t, sleeper.waits, hooked)
}

func TestQuotaGuard_NilResponse(t *testing.T) {
	guard := newQuotaGuard("test", 100, zerolog.Nop(), nil, nil, nil)
	assert.NoError(t, guard.observe(context.Background(), nil))
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestNewGitHubGateway(t *testing.T) {
	gateway, err := NewGitHubGateway(domain.Credential{Label: "personal", Token: "t"}, "octocat", zerolog.Nop(),
		WithAPIBaseURL("https://ghe.example.com/api/v3/"),
		WithDiscovery(DiscoveryGraphQL),
		WithRateLimitFloor(5),
	)
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3/", gateway.restClient.BaseURL.String())
	assert.Equal(t, DiscoveryGraphQL, gateway.discovery)
	assert.Equal(t, 5, gateway.quota.floor)
}
