package analytics

import (
	"fmt"
	"time"

	"trackgate/internal/cache"
)

// DefaultThroughputWeeks is how many ISO weeks the breakdown covers when
// the caller does not say.
const DefaultThroughputWeeks = 4

// WeeklyThroughput is one ISO week's created/closed balance.
type WeeklyThroughput struct {
	Week    string `json:"week"`
	Created int    `json:"created"`
	Closed  int    `json:"closed"`
	Net     int    `json:"net"`
}

// ThroughputResult carries the weekly_breakdown key the renderer
// dispatches on.
type ThroughputResult struct {
	Result
	WeeklyBreakdown   []WeeklyThroughput `json:"weekly_breakdown,omitempty"`
	AvgCreatedPerWeek float64            `json:"avg_created_per_week"`
	AvgClosedPerWeek  float64            `json:"avg_closed_per_week"`
	NetThroughput     int                `json:"net_throughput"`
	Trend             string             `json:"trend,omitempty"`
}

// Throughput counts created and closed issues per aligned ISO week over the
// last N weeks ending at the week containing now. Net is created minus
// closed, so a positive trend means the backlog is growing.
func Throughput(snap *cache.Snapshot, projectID, weeks int, now time.Time) ThroughputResult {
	if snap == nil {
		return ThroughputResult{Result: cacheUnavailable()}
	}
	if weeks <= 0 {
		weeks = DefaultThroughputWeeks
	}

	starts := weekStarts(now, weeks)
	breakdown := make([]WeeklyThroughput, len(starts))
	for i, start := range starts {
		year, week := start.ISOWeek()
		breakdown[i].Week = fmt.Sprintf("%d-W%02d", year, week)
	}

	rows := snap.ProjectIssues(projectID)
	for i, start := range starts {
		end := start.AddDate(0, 0, 7)
		for _, row := range rows {
			if inWindow(row.CreatedOn, start, end) {
				breakdown[i].Created++
			}
			if row.ClosedOn != nil && inWindow(*row.ClosedOn, start, end) {
				breakdown[i].Closed++
			}
		}
		breakdown[i].Net = breakdown[i].Created - breakdown[i].Closed
	}

	result := ThroughputResult{Result: ok(), WeeklyBreakdown: breakdown}
	createdTotal, closedTotal := 0, 0
	for _, wk := range breakdown {
		createdTotal += wk.Created
		closedTotal += wk.Closed
		result.NetThroughput += wk.Net
	}
	result.AvgCreatedPerWeek = round1(float64(createdTotal) / float64(weeks))
	result.AvgClosedPerWeek = round1(float64(closedTotal) / float64(weeks))
	result.Trend = "negative"
	if result.NetThroughput >= 0 {
		result.Trend = "positive"
	}
	return result
}

// weekStarts returns the Monday 00:00 boundaries of the last n aligned ISO
// weeks, oldest first, the last one containing now.
func weekStarts(now time.Time, n int) []time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)

	starts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		starts[i] = monday.AddDate(0, 0, -7*(n-1-i))
	}
	return starts
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
