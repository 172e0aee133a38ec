package gateway

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// viewerRepositoriesQuery lists every repository visible to the viewer, cursor-paginated.
type viewerRepositoriesQuery struct {
	Viewer struct {
		Repositories struct {
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
			Nodes []struct {
				NameWithOwner string
				IsPrivate     bool
			}
		} `graphql:"repositories(first: 100, after: $cursor, affiliations: [OWNER, COLLABORATOR, ORGANIZATION_MEMBER], ownerAffiliations: [OWNER, COLLABORATOR, ORGANIZATION_MEMBER])"`
	}
}

func (g *GitHubGateway) listRepositoriesGraphQL(ctx context.Context) ([]domain.RepositoryRef, error) {
	variables := map[string]interface{}{"cursor": (*githubv4.String)(nil)}
	var refs []domain.RepositoryRef
	for {
		var q viewerRepositoriesQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("failed to execute GraphQL repository query: %w: %w", domain.ErrTransport, err)
		}
		for _, node := range q.Viewer.Repositories.Nodes {
			refs = append(refs, domain.RepositoryRef{
				FullName: node.NameWithOwner,
				Private:  node.IsPrivate,
			})
		}
		if !q.Viewer.Repositories.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Viewer.Repositories.PageInfo.EndCursor)
		g.logger.Debug().Msg("fetching next page of repositories")
	}
	return refs, nil
}
