// Package usecase contains the business logic of the application.
package usecase

import (
	"context"

	"github.com/naka-gawa/loc-stats/internal/domain"
	"github.com/naka-gawa/loc-stats/internal/gateway"
)

// Source pairs a credential with the gateway authenticated by it.
type Source struct {
	Credential domain.Credential
	Fetcher    gateway.Fetcher
}

// HistoryWalker computes weekly stats directly from commit history.
// It returns an empty slice, never an error, when it cannot.
type HistoryWalker interface {
	Walk(ctx context.Context, cred domain.Credential, fullName string) []domain.Week
}
