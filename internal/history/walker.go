// Package history counts a user's weekly line changes by walking a repository's
// commit history with git. It is the fallback for when the stats API cannot answer.
package history

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultCloneBaseURL = "https://github.com"
	defaultGitBinary    = "git"
	tempPrefix          = "loc-stats-"
	maxDiagnosticLength = 200
	redactedPlaceholder = "***"
	waitDelay           = 2 * time.Second
)

// Walker clones repositories without blobs and sums numstat output per ISO week.
type Walker struct {
	// Author is passed to git log --author.
	Author string
	// Timeout bounds clone plus log.
	Timeout time.Duration
	// CloneBaseURL is the git host, e.g. https://github.com.
	CloneBaseURL string
	// GitBinary is the git executable.
	GitBinary string
	// TempRoot is where scratch clones are created; empty means os.TempDir.
	TempRoot string
	// OnWalk, when set, is told whether a walk produced data.
	OnWalk func(ok bool)
}

// NewWalker returns a Walker with defaults applied.
func NewWalker(author string) *Walker {
	return &Walker{
		Author:       author,
		Timeout:      defaultTimeout,
		CloneBaseURL: defaultCloneBaseURL,
		GitBinary:    defaultGitBinary,
	}
}

// Walk returns the weekly additions and deletions of the author in fullName.
// Any failure, including the timeout, yields an empty result. The logger is taken
// from ctx and must already identify the repository by a display name; neither
// fullName nor the credential token is ever logged.
func (w *Walker) Walk(ctx context.Context, cred domain.Credential, fullName string) []domain.Week {
	logger := zerolog.Ctx(ctx)
	scrub := strings.NewReplacer(nonEmpty(cred.Token), redactedPlaceholder, nonEmpty(fullName), redactedPlaceholder)

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp(w.TempRoot, tempPrefix)
	if err != nil {
		logger.Warn().Err(err).Msg("could not create scratch directory")
		w.report(false)
		return []domain.Week{}
	}
	defer os.RemoveAll(dir)

	weeks, err := w.walk(ctx, dir, cred, fullName)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn().Dur("timeout", timeout).Msg("clone/log timed out")
		} else {
			logger.Warn().Str("error", truncate(scrub.Replace(err.Error()))).Msg("clone/log failed")
		}
		w.report(false)
		return []domain.Week{}
	}

	additions, deletions := domain.SumWeeks(weeks)
	logger.Info().Int("additions", additions).Int("deletions", deletions).Msg("git log complete")
	w.report(true)
	return weeks
}

func (w *Walker) walk(ctx context.Context, dir string, cred domain.Credential, fullName string) ([]domain.Week, error) {
	logger := zerolog.Ctx(ctx)
	repoPath := filepath.Join(dir, "repo")

	remote, err := w.remoteURL(cred, fullName)
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("cloning (blobless)")
	if _, err := w.git(ctx, "clone", "--quiet", "--filter=blob:none", "--bare", remote, repoPath); err != nil {
		return nil, err
	}

	logger.Info().Msg("running git log --numstat")
	out, err := w.git(ctx, "-C", repoPath, "log", "--author="+w.Author, "--pretty=format:%at", "--numstat")
	if err != nil {
		return nil, err
	}
	return ParseNumstat(bytes.NewReader(out))
}

// git runs the binary and returns stdout. Errors carry stderr, which the caller scrubs.
func (w *Walker) git(ctx context.Context, args ...string) ([]byte, error) {
	bin := w.GitBinary
	if bin == "" {
		bin = defaultGitBinary
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	// git clone forks remote helpers that inherit the output pipes. Kill the
	// whole group on cancellation and stop waiting for the pipes shortly after.
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// remoteURL builds an authenticated clone URL. Local paths and file URLs are used as is.
func (w *Walker) remoteURL(cred domain.Credential, fullName string) (string, error) {
	base := w.CloneBaseURL
	if base == "" {
		base = defaultCloneBaseURL
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/" + fullName + ".git")
	if err != nil {
		return "", fmt.Errorf("invalid clone URL: %w", err)
	}
	if cred.Token != "" && (u.Scheme == "https" || u.Scheme == "http") {
		u.User = url.UserPassword("x-access-token", cred.Token)
	}
	return u.String(), nil
}

func (w *Walker) report(ok bool) {
	if w.OnWalk != nil {
		w.OnWalk(ok)
	}
}

// ParseNumstat reads `git log --pretty=format:%at --numstat` output and sums
// additions and deletions per ISO week. Binary entries ("-") and malformed
// lines are skipped. The result is sorted by week start.
func ParseNumstat(r io.Reader) ([]domain.Week, error) {
	weekly := make(map[int64]*domain.Week)
	var current int64
	haveCommit := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ts, err := strconv.ParseInt(line, 10, 64); err == nil {
			current = domain.WeekStart(time.Unix(ts, 0))
			haveCommit = true
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || !haveCommit {
			continue
		}
		adds, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		dels, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		week, ok := weekly[current]
		if !ok {
			week = &domain.Week{Start: current}
			weekly[current] = week
		}
		week.Additions += adds
		week.Deletions += dels
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read git log: %w", err)
	}

	weeks := make([]domain.Week, 0, len(weekly))
	for _, week := range weekly {
		weeks = append(weeks, *week)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Start < weeks[j].Start })
	return weeks, nil
}

func truncate(s string) string {
	if len(s) > maxDiagnosticLength {
		return s[:maxDiagnosticLength]
	}
	return s
}

// nonEmpty keeps strings.NewReplacer from matching the empty string everywhere.
func nonEmpty(s string) string {
	if s == "" {
		return "\x00"
	}
	return s
}
