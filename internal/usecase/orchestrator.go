package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/naka-gawa/loc-stats/internal/domain"
	"github.com/naka-gawa/loc-stats/internal/gateway"
)

// Outcome is the terminal state of one repository in a run.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeZero      Outcome = "zero"
	OutcomeReady     Outcome = "ready"
	OutcomeFallback  Outcome = "fallback"
	OutcomeStale     Outcome = "stale"
	OutcomeFailed    Outcome = "failed"
)

const defaultPass2Delay = 10 * time.Second

// Report summarises a run.
type Report struct {
	Outcomes map[string]Outcome
	Deferred int
}

// Count returns how many repositories ended with outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

// Orchestrator drives the two-pass statistics collection over all repositories.
type Orchestrator struct {
	sources    map[string]Source
	walker     HistoryWalker
	logger     zerolog.Logger
	user       string
	pass2Delay time.Duration
	now        func() time.Time
	sleep      gateway.SleepFunc
	checkpoint func(context.Context, domain.Cache) error
	onOutcome  func(Outcome)
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPass2Delay sets the wait before re-requesting still-computing statistics.
func WithPass2Delay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.pass2Delay = d }
}

// WithOrchestratorClock replaces the wall clock and the sleeper.
func WithOrchestratorClock(now func() time.Time, sleep gateway.SleepFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
		o.sleep = sleep
	}
}

// WithCheckpoint saves the cache after every mutation.
func WithCheckpoint(fn func(context.Context, domain.Cache) error) OrchestratorOption {
	return func(o *Orchestrator) { o.checkpoint = fn }
}

// WithOutcomeHook observes every terminal outcome.
func WithOutcomeHook(fn func(Outcome)) OrchestratorOption {
	return func(o *Orchestrator) { o.onOutcome = fn }
}

// NewOrchestrator creates an Orchestrator. user only appears in log lines.
func NewOrchestrator(sources []Source, walker HistoryWalker, user string, logger zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sources:    make(map[string]Source, len(sources)),
		walker:     walker,
		logger:     logger,
		user:       user,
		pass2Delay: defaultPass2Delay,
		now:        time.Now,
		sleep:      gateway.Sleep,
	}
	for _, src := range sources {
		o.sources[src.Credential.Label] = src
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the mutable state of one Run call.
type run struct {
	cache  domain.Cache
	report Report
	names  *displayNamer
}

// Run processes repos in name order and returns the updated cache. The
// input cache is not modified. Repositories whose statistics are still being
// computed are retried once after the pass-2 delay.
func (o *Orchestrator) Run(ctx context.Context, repos []domain.RepositoryRef, cache domain.Cache) (domain.Cache, Report) {
	r := &run{
		cache:  cache.Clone(),
		report: Report{Outcomes: make(map[string]Outcome, len(repos))},
		names:  newDisplayNamer(),
	}

	sorted := append([]domain.RepositoryRef(nil), repos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FullName < sorted[j].FullName })

	o.logger.Info().Msg("[PASS 1] requesting stats for all repositories")
	var deferred []domain.RepositoryRef
	for i, ref := range sorted {
		ctx := o.repoContext(ctx, r, ref, i, len(sorted))
		if o.firstPass(ctx, r, ref) {
			deferred = append(deferred, ref)
		}
	}

	r.report.Deferred = len(deferred)
	if len(deferred) == 0 {
		return r.cache, r.report
	}

	o.logger.Info().
		Dur("wait", o.pass2Delay).
		Int("repositories", len(deferred)).
		Msg("[PASS 2] waiting for GitHub to compute stats")
	if err := o.sleep(ctx, o.pass2Delay); err != nil {
		o.logger.Warn().Err(err).Msg("pass 2 wait interrupted, keeping cached data")
		for _, ref := range deferred {
			o.finish(r, ref, OutcomeStale)
		}
		return r.cache, r.report
	}
	for i, ref := range deferred {
		ctx := o.repoContext(ctx, r, ref, i, len(deferred))
		o.secondPass(ctx, r, ref)
	}
	return r.cache, r.report
}

// repoContext attaches a logger that names the repository by its display name only.
func (o *Orchestrator) repoContext(ctx context.Context, r *run, ref domain.RepositoryRef, i, n int) context.Context {
	logger := o.logger.With().
		Str("repo", r.names.name(ref)).
		Str("progress", fmt.Sprintf("%d/%d", i+1, n)).
		Logger()
	return logger.WithContext(ctx)
}

// firstPass reports whether ref must be retried in pass 2.
func (o *Orchestrator) firstPass(ctx context.Context, r *run, ref domain.RepositoryRef) bool {
	logger := zerolog.Ctx(ctx)
	src, ok := o.sources[ref.Credential]
	if !ok {
		logger.Error().Str("credential", ref.Credential).Msg("no source for credential")
		o.finish(r, ref, OutcomeFailed)
		return false
	}

	prior := r.cache.Repos[ref.FullName]
	res, err := src.Fetcher.FetchContributorStats(ctx, ref.FullName, prior.ETag)
	if err != nil {
		o.fail(ctx, r, ref, err)
		return false
	}

	switch res.Status {
	case domain.StatsComputing:
		logger.Info().Msg("202 (queued for pass 2)")
		return true
	case domain.StatsUnchanged:
		a, d := prior.Totals()
		logger.Info().Int("additions", a).Int("deletions", d).Msg("304 (cache hit)")
		o.finish(r, ref, OutcomeUnchanged)
	default:
		o.finish(r, ref, o.settle(ctx, r, ref, src, res))
	}
	return false
}

func (o *Orchestrator) secondPass(ctx context.Context, r *run, ref domain.RepositoryRef) {
	logger := zerolog.Ctx(ctx)
	src := o.sources[ref.Credential]

	res, err := src.Fetcher.FetchContributorStats(ctx, ref.FullName, "")
	if err != nil {
		o.fail(ctx, r, ref, err)
		return
	}

	switch res.Status {
	case domain.StatsComputing:
		if prior, ok := r.cache.Repos[ref.FullName]; ok && len(prior.Weeks) > 0 {
			logger.Info().Msg("still 202, using cached data")
			o.finish(r, ref, OutcomeStale)
			return
		}
		logger.Info().Msg("still 202, falling back to history walk")
		weeks := o.walker.Walk(ctx, src.Credential, ref.FullName)
		o.store(ctx, r, ref, res.ETag, weeks)
		o.finish(r, ref, OutcomeFallback)
	case domain.StatsUnchanged:
		o.finish(r, ref, OutcomeUnchanged)
	default:
		o.finish(r, ref, o.settle(ctx, r, ref, src, res))
	}
}

// settle stores a ready result. Weeks that are all zero are taken as the
// API's large-history limitation and replaced by a history walk. This is a
// heuristic: a repository with genuinely empty weeks is walked as well.
func (o *Orchestrator) settle(ctx context.Context, r *run, ref domain.RepositoryRef, src Source, res domain.StatsResult) Outcome {
	logger := zerolog.Ctx(ctx)

	if len(res.Weeks) == 0 {
		logger.Info().Str("user", o.user).Msg("no commits by user")
		o.store(ctx, r, ref, res.ETag, nil)
		return OutcomeZero
	}

	a, d := domain.SumWeeks(res.Weeks)
	if a == 0 && d == 0 {
		logger.Info().Msg("all zeroes, falling back to history walk")
		weeks := o.walker.Walk(ctx, src.Credential, ref.FullName)
		o.store(ctx, r, ref, res.ETag, weeks)
		return OutcomeFallback
	}

	logger.Info().Int("additions", a).Int("deletions", d).Msg("200")
	o.store(ctx, r, ref, res.ETag, res.Weeks)
	return OutcomeReady
}

// store replaces the cache entry of ref as a whole.
func (o *Orchestrator) store(ctx context.Context, r *run, ref domain.RepositoryRef, etag string, weeks []domain.Week) {
	r.cache.Repos[ref.FullName] = domain.CacheEntry{
		ETag:        etag,
		Private:     ref.Private,
		Weeks:       domain.BucketsFromWeeks(weeks),
		LastFetched: o.now().UTC(),
	}
	if o.checkpoint == nil {
		return
	}
	if err := o.checkpoint(ctx, r.cache); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("checkpoint failed")
	}
}

func (o *Orchestrator) fail(ctx context.Context, r *run, ref domain.RepositoryRef, err error) {
	msg := err.Error()
	if ref.Private {
		msg = strings.ReplaceAll(msg, ref.FullName, r.names.name(ref))
	}
	zerolog.Ctx(ctx).Error().Str("error", msg).Msg("failed to fetch stats, keeping cached data")
	o.finish(r, ref, OutcomeFailed)
}

func (o *Orchestrator) finish(r *run, ref domain.RepositoryRef, outcome Outcome) {
	r.report.Outcomes[ref.FullName] = outcome
	if o.onOutcome != nil {
		o.onOutcome(outcome)
	}
}
