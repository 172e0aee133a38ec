// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"strings"
	"time"
)

// Credential is a labelled API token. The label is safe to log, the token is not.
type Credential struct {
	Label string
	Token string
}

// String never prints the token.
func (c Credential) String() string {
	return c.Label
}

// RepositoryRef identifies a repository discovered for a credential.
// It is rebuilt on every run and never persisted.
type RepositoryRef struct {
	FullName   string // owner/name
	Private    bool
	Credential string // label of the credential that discovered it
}

// Owner returns the owner part of FullName.
func (r RepositoryRef) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Name returns the repository name part of FullName.
func (r RepositoryRef) Name() string {
	_, name, _ := strings.Cut(r.FullName, "/")
	return name
}

// Week is one week of change statistics as produced by a source
// (the stats API or a history walk). Start is a Unix timestamp.
type Week struct {
	Start     int64
	Additions int
	Deletions int
}

// StatsStatus is the outcome class of a contributor statistics request.
type StatsStatus int

const (
	// StatsReady means Weeks holds the identity's full weekly breakdown (possibly empty).
	StatsReady StatsStatus = iota
	// StatsUnchanged means the conditional token matched; cached weeks stay as they are.
	StatsUnchanged
	// StatsComputing means the remote is still preparing the statistics.
	StatsComputing
)

func (s StatsStatus) String() string {
	switch s {
	case StatsReady:
		return "ready"
	case StatsUnchanged:
		return "unchanged"
	case StatsComputing:
		return "computing"
	default:
		return "unknown"
	}
}

// StatsResult is returned by a contributor statistics fetch.
// Weeks is nil unless Status is StatsReady.
type StatsResult struct {
	Weeks  []Week
	ETag   string
	Status StatsStatus
}

// WeekStart truncates t to Monday 00:00 UTC of its ISO week and returns the Unix timestamp.
func WeekStart(t time.Time) int64 {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset).Unix()
}

// SumWeeks returns the total additions and deletions across weeks.
func SumWeeks(weeks []Week) (additions, deletions int) {
	for _, w := range weeks {
		additions += w.Additions
		deletions += w.Deletions
	}
	return additions, deletions
}
