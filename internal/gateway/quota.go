package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
)

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	minQuotaWait        = time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// quotaGuard pauses all callers sharing a credential once the remaining
// quota drops below floor, until the advertised reset time.
type quotaGuard struct {
	mu     sync.Mutex
	label  string
	floor  int
	logger zerolog.Logger
	now    func() time.Time
	sleep  SleepFunc
	onWait func(time.Duration)

	// resetDone is the last reset time already waited for.
	resetDone time.Time
}

func newQuotaGuard(label string, floor int, logger zerolog.Logger, now func() time.Time, sleep SleepFunc, onWait func(time.Duration)) *quotaGuard {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &quotaGuard{
		label:  label,
		floor:  floor,
		logger: logger,
		now:    now,
		sleep:  sleep,
		onWait: onWait,
	}
}

// observe inspects the quota headers of resp, whatever its status,
// and blocks while the quota is below the floor.
func (q *quotaGuard) observe(ctx context.Context, resp *github.Response) error {
	if resp == nil || resp.Response == nil || resp.Header.Get(headerRateRemaining) == "" {
		return nil
	}
	if resp.Rate.Remaining >= q.floor {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	reset := resp.Rate.Reset.Time
	if !q.resetDone.IsZero() && !reset.After(q.resetDone) {
		return nil
	}

	wait := reset.Sub(q.now())
	if wait < minQuotaWait {
		wait = minQuotaWait
	}
	q.logger.Warn().
		Int("remaining", resp.Rate.Remaining).
		Dur("wait", wait).
		Msg("rate limit below floor, sleeping until reset")
	if q.onWait != nil {
		q.onWait(wait)
	}
	if err := q.sleep(ctx, wait); err != nil {
		return err
	}
	q.resetDone = reset
	return nil
}
