package domain

import "time"

// Window is a named trailing time span. A zero Span is unbounded.
type Window struct {
	Name string
	Span time.Duration
}

const day = 24 * time.Hour

// Windows are the aggregation windows in display order.
var Windows = []Window{
	{Name: "All Time"},
	{Name: "Last Year", Span: 365 * day},
	{Name: "Last Month", Span: 30 * day},
	{Name: "Last Week", Span: 7 * day},
}

// LowerBound returns the smallest week start included in the window at now.
func (w Window) LowerBound(now time.Time) int64 {
	if w.Span == 0 {
		return 0
	}
	return now.Add(-w.Span).Unix()
}

// Includes reports whether a week starting at weekStart falls inside the window.
func (w Window) Includes(weekStart int64, now time.Time) bool {
	if w.Span == 0 {
		return true
	}
	return weekStart >= w.LowerBound(now)
}

// WindowTotal is the aggregate for one window.
type WindowTotal struct {
	Window    string `json:"window"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Total     int    `json:"total"`

	WeeklyMean   float64 `json:"weekly_mean"`
	WeeklyMedian float64 `json:"weekly_median"`
	PeakWeek     int     `json:"peak_week"`
}

// AggregateResult holds one total per window, in Windows order.
type AggregateResult []WindowTotal

// Get returns the total for the named window.
func (r AggregateResult) Get(name string) (WindowTotal, bool) {
	for _, t := range r {
		if t.Window == name {
			return t, true
		}
	}
	return WindowTotal{}, false
}
