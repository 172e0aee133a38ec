// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// DiscoveryBackend selects the API used to list repositories.
type DiscoveryBackend string

const (
	DiscoveryREST    DiscoveryBackend = "rest"
	DiscoveryGraphQL DiscoveryBackend = "graphql"
)

const (
	defaultRateLimitFloor = 100
	defaultRequestTimeout = 30 * time.Second
	listPageSize          = 100
)

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
// One Fetcher is bound to exactly one credential.
type Fetcher interface {
	ListRepositories(ctx context.Context) ([]domain.RepositoryRef, error)
	FetchContributorStats(ctx context.Context, fullName, etag string) (domain.StatsResult, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        zerolog.Logger
	user          string
	discovery     DiscoveryBackend
	quota         *quotaGuard
}

// Option customises a GitHubGateway.
type Option func(*options)

type options struct {
	apiBaseURL     string
	floor          int
	requestTimeout time.Duration
	discovery      DiscoveryBackend
	now            func() time.Time
	sleep          SleepFunc
	onWait         func(time.Duration)
}

// WithAPIBaseURL points the gateway at a GitHub Enterprise style API root.
func WithAPIBaseURL(u string) Option {
	return func(o *options) { o.apiBaseURL = u }
}

// WithRateLimitFloor sets the remaining-quota threshold below which calls block until reset.
func WithRateLimitFloor(floor int) Option {
	return func(o *options) { o.floor = floor }
}

// WithRequestTimeout bounds every HTTP request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDiscovery selects the repository listing backend.
func WithDiscovery(b DiscoveryBackend) Option {
	return func(o *options) { o.discovery = b }
}

// WithClock replaces the wall clock and the sleeper used for quota waits.
func WithClock(now func() time.Time, sleep SleepFunc) Option {
	return func(o *options) {
		o.now = now
		o.sleep = sleep
	}
}

// WithQuotaWaitHook is called with the duration of every quota wait.
func WithQuotaWaitHook(fn func(time.Duration)) Option {
	return func(o *options) { o.onWait = fn }
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway
// for one credential. user is the login whose contributions are counted.
func NewGitHubGateway(cred domain.Credential, user string, logger zerolog.Logger, opts ...Option) (*GitHubGateway, error) {
	o := options{
		floor:          defaultRateLimitFloor,
		requestTimeout: defaultRequestTimeout,
		discovery:      DiscoveryREST,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token})
	httpClient := &http.Client{
		Timeout: o.requestTimeout,
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	restClient := github.NewClient(httpClient)
	graphqlClient := githubv4.NewClient(httpClient)
	if o.apiBaseURL != "" {
		restClient, err = restClient.WithEnterpriseURLs(o.apiBaseURL, o.apiBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set API base URL: %w", err)
		}
		graphqlClient = githubv4.NewEnterpriseClient(strings.TrimSuffix(o.apiBaseURL, "/")+"/graphql", httpClient)
	}

	logger = logger.With().Str("credential", cred.Label).Logger()
	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
		user:          user,
		discovery:     o.discovery,
		quota:         newQuotaGuard(cred.Label, o.floor, logger, o.now, o.sleep, o.onWait),
	}, nil
}

// ListRepositories returns every repository the credential can see.
func (g *GitHubGateway) ListRepositories(ctx context.Context) ([]domain.RepositoryRef, error) {
	if g.discovery == DiscoveryGraphQL {
		return g.listRepositoriesGraphQL(ctx)
	}
	return g.listRepositoriesREST(ctx)
}

func (g *GitHubGateway) listRepositoriesREST(ctx context.Context) ([]domain.RepositoryRef, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Visibility:  "all",
		Affiliation: "owner,collaborator,organization_member",
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}
	var refs []domain.RepositoryRef
	page := 1
	for {
		g.logger.Debug().Int("page", page).Msg("GET /user/repos")
		repos, resp, err := g.restClient.Repositories.ListByAuthenticatedUser(ctx, opts)
		if qerr := g.quota.observe(ctx, resp); qerr != nil {
			return nil, qerr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", classify(err))
		}
		for _, repo := range repos {
			refs = append(refs, domain.RepositoryRef{
				FullName: repo.GetFullName(),
				Private:  repo.GetPrivate(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		page++
	}
	return refs, nil
}

// FetchContributorStats fetches the weekly contributor statistics of one repository
// and keeps only the weeks of the configured user. A non-empty etag makes the request conditional.
func (g *GitHubGateway) FetchContributorStats(ctx context.Context, fullName, etag string) (domain.StatsResult, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return domain.StatsResult{}, fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
	}
	u := fmt.Sprintf("repos/%s/%s/stats/contributors", url.PathEscape(owner), url.PathEscape(name))
	req, err := g.restClient.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return domain.StatsResult{}, fmt.Errorf("failed to build stats request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	var contributors []*github.ContributorStats
	resp, err := g.restClient.Do(ctx, req, &contributors)
	if qerr := g.quota.observe(ctx, resp); qerr != nil {
		return domain.StatsResult{}, qerr
	}

	var newETag string
	if resp != nil {
		newETag = resp.Header.Get("ETag")
	}

	var accepted *github.AcceptedError
	switch {
	case resp != nil && resp.StatusCode == http.StatusNotModified:
		return domain.StatsResult{ETag: etag, Status: domain.StatsUnchanged}, nil
	case errors.As(err, &accepted):
		return domain.StatsResult{ETag: newETag, Status: domain.StatsComputing}, nil
	case err != nil:
		return domain.StatsResult{}, fmt.Errorf("failed to fetch contributor stats: %w", classify(err))
	case resp.StatusCode != http.StatusOK:
		return domain.StatsResult{}, fmt.Errorf("%w: contributor stats returned %d", domain.ErrUnexpectedStatus, resp.StatusCode)
	}

	return domain.StatsResult{
		Weeks:  weeksForUser(contributors, g.user),
		ETag:   newETag,
		Status: domain.StatsReady,
	}, nil
}

// weeksForUser picks the contributor matching user (case-insensitive).
// It returns an empty, non-nil slice when the user made no commits.
func weeksForUser(contributors []*github.ContributorStats, user string) []domain.Week {
	for _, c := range contributors {
		if !strings.EqualFold(c.GetAuthor().GetLogin(), user) {
			continue
		}
		weeks := make([]domain.Week, 0, len(c.Weeks))
		for _, w := range c.Weeks {
			weeks = append(weeks, domain.Week{
				Start:     w.GetWeek().Unix(),
				Additions: w.GetAdditions(),
				Deletions: w.GetDeletions(),
			})
		}
		return weeks
	}
	return []domain.Week{}
}

// classify maps go-github errors onto the domain error taxonomy.
func classify(err error) error {
	var (
		errResp  *github.ErrorResponse
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	case errors.As(err, &errResp) && errResp.Response != nil:
		switch errResp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %w", domain.ErrAuthorization, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransport, err)
}
