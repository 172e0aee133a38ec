package usecase

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// Aggregate folds every cached week into the named windows relative to now.
// It has no side effects and reads nothing but its arguments.
func Aggregate(cache domain.Cache, now time.Time) domain.AggregateResult {
	result := make(domain.AggregateResult, 0, len(domain.Windows))
	for _, window := range domain.Windows {
		total := domain.WindowTotal{Window: window.Name}
		perWeek := make(map[int64]int)
		for _, entry := range cache.Repos {
			for start, bucket := range entry.Weeks {
				if !window.Includes(start, now) {
					continue
				}
				total.Additions += bucket.Additions
				total.Deletions += bucket.Deletions
				perWeek[start] += bucket.Additions + bucket.Deletions
			}
		}
		total.Total = total.Additions + total.Deletions
		total.WeeklyMean, total.WeeklyMedian, total.PeakWeek = weeklyStats(perWeek)
		result = append(result, total)
	}
	return result
}

// weeklyStats describes the distribution of per-week totals. Weeks without
// any cached bucket are not counted.
func weeklyStats(perWeek map[int64]int) (mean, median float64, peak int) {
	if len(perWeek) == 0 {
		return 0, 0, 0
	}
	data := make(stats.Float64Data, 0, len(perWeek))
	for _, v := range perWeek {
		data = append(data, float64(v))
		if v > peak {
			peak = v
		}
	}
	mean, _ = stats.Mean(data)
	median, _ = stats.Median(data)
	return mean, median, peak
}
