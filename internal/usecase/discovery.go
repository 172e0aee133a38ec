package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// Discoverer lists the repositories of every source and merges them.
type Discoverer struct {
	sources []Source
	logger  zerolog.Logger
}

// NewDiscoverer creates a Discoverer. Source order decides which credential
// is kept for a repository visible to several of them.
func NewDiscoverer(sources []Source, logger zerolog.Logger) *Discoverer {
	return &Discoverer{sources: sources, logger: logger}
}

// Discover returns the deduplicated union of all listings. Listings run
// concurrently; a failing source is logged and contributes nothing.
func (d *Discoverer) Discover(ctx context.Context) []domain.RepositoryRef {
	listings := make([][]domain.RepositoryRef, len(d.sources))

	// A plain group: one failing credential must not cancel the others.
	var eg errgroup.Group
	for i, src := range d.sources {
		eg.Go(func() error {
			logger := d.logger.With().Str("credential", src.Credential.Label).Logger()
			logger.Info().Msgf("[TOKEN %d/%d] fetching repositories", i+1, len(d.sources))
			refs, err := src.Fetcher.ListRepositories(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to list repositories")
				return fmt.Errorf("%s: %w", src.Credential.Label, err)
			}
			logger.Info().Int("count", len(refs)).Msg("repositories found")
			listings[i] = refs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		d.logger.Warn().Err(err).Msg("discovery incomplete, continuing with the listings that succeeded")
	}

	seen := make(map[string]struct{})
	var merged []domain.RepositoryRef
	for i, refs := range listings {
		for _, ref := range refs {
			if _, ok := seen[ref.FullName]; ok {
				continue
			}
			seen[ref.FullName] = struct{}{}
			ref.Credential = d.sources[i].Credential.Label
			merged = append(merged, ref)
		}
	}
	d.logger.Info().Int("count", len(merged)).Msg("total unique repositories")
	return merged
}
