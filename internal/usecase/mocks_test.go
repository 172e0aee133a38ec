package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ListRepositories(ctx context.Context) ([]domain.RepositoryRef, error) {
	args := m.Called(ctx)
	// We need to handle the case where the returned slice is nil (e.g., when an error occurs).
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RepositoryRef), args.Error(1)
}

func (m *mockFetcher) FetchContributorStats(ctx context.Context, fullName, etag string) (domain.StatsResult, error) {
	args := m.Called(ctx, fullName, etag)
	return args.Get(0).(domain.StatsResult), args.Error(1)
}

// mockWalker is a mock of the HistoryWalker interface.
type mockWalker struct {
	mock.Mock
}

func (m *mockWalker) Walk(ctx context.Context, cred domain.Credential, fullName string) []domain.Week {
	args := m.Called(ctx, cred, fullName)
	return args.Get(0).([]domain.Week)
}

// noSleep records the requested pass-2 waits.
type noSleep struct {
	waits []time.Duration
}

func (n *noSleep) sleep(_ context.Context, d time.Duration) error {
	n.waits = append(n.waits, d)
	return nil
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func week(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
}
