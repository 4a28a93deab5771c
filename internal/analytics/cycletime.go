package analytics

import (
	"trackgate/internal/cache"
)

// journalUnavailableReason marks reopened counts that cannot be computed
// because the bulk listing endpoint does not return journals.
const journalUnavailableReason = "journal_unavailable"

// LeadTime measures created to closed.
type LeadTime struct {
	AverageDays *float64 `json:"average_days"`
	SampleSize  int      `json:"sample_size"`
}

// CycleTime measures start to closed, falling back to created when no start
// date was recorded.
type CycleTime struct {
	AverageDays  *float64 `json:"average_days"`
	SampleSize   int      `json:"sample_size"`
	FallbackUsed bool     `json:"fallback_used"`
}

// ReopenedTickets counts closed-to-open status transitions. Count is null
// with a reason when journals were not loaded into the snapshot.
type ReopenedTickets struct {
	Count      *int     `json:"count"`
	Percentage *float64 `json:"percentage,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// CycleTimeResult carries the lead_time and cycle_time keys the renderer
// dispatches on.
type CycleTimeResult struct {
	Result
	LeadTime        *LeadTime        `json:"lead_time,omitempty"`
	CycleTime       *CycleTime       `json:"cycle_time,omitempty"`
	ReopenedTickets *ReopenedTickets `json:"reopened_tickets,omitempty"`
}

// CycleTimeAnalytics averages lead and cycle time over the project's closed
// issues. Issues without a closed timestamp are excluded rather than
// imputed from status.
func CycleTimeAnalytics(snap *cache.Snapshot, projectID int) CycleTimeResult {
	if snap == nil {
		return CycleTimeResult{Result: cacheUnavailable()}
	}

	lead := LeadTime{}
	cycle := CycleTime{}
	var leadTotal, cycleTotal float64
	reopened := 0

	for _, row := range snap.ProjectIssues(projectID) {
		if row.ClosedOn == nil {
			continue
		}
		lead.SampleSize++
		leadTotal += daysBetween(row.CreatedOn, *row.ClosedOn)

		cycle.SampleSize++
		if row.StartDate != nil {
			cycleTotal += daysBetween(*row.StartDate, *row.ClosedOn)
		} else {
			cycleTotal += daysBetween(row.CreatedOn, *row.ClosedOn)
			cycle.FallbackUsed = true
		}
		if snap.JournalsLoaded && row.Reopened {
			reopened++
		}
	}

	if lead.SampleSize > 0 {
		lead.AverageDays = ptrFloat(round1(leadTotal / float64(lead.SampleSize)))
	}
	if cycle.SampleSize > 0 {
		cycle.AverageDays = ptrFloat(round1(cycleTotal / float64(cycle.SampleSize)))
	}

	tickets := &ReopenedTickets{}
	if snap.JournalsLoaded {
		tickets.Count = ptrInt(reopened)
		if lead.SampleSize > 0 {
			tickets.Percentage = ptrFloat(round1(float64(reopened) / float64(lead.SampleSize) * 100))
		}
	} else {
		tickets.Reason = journalUnavailableReason
	}

	return CycleTimeResult{
		Result:          ok(),
		LeadTime:        &lead,
		CycleTime:       &cycle,
		ReopenedTickets: tickets,
	}
}
