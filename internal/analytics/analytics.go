// Package analytics computes the gateway's fixed aggregation set over a
// cache snapshot, plus the direct-count variants that hit the tracker for
// exact live totals.
//
// Every function returns a JSON-shaped result whose top-level keys are a
// contract with the rendering layer; callers marshal them unchanged.
package analytics

import (
	"math"
	"time"

	"trackgate/internal/redmine"
)

// Result is the common success/error envelope on every aggregation output.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func ok() Result { return Result{Success: true} }

func failure(err error) Result {
	res := Result{Success: false, Error: err.Error()}
	if kind := redmine.KindOf(err); kind != "" {
		res.Kind = string(kind)
	}
	return res
}

// ErrCacheUnavailable mirrors cache.ErrUnavailable into a tool result.
func cacheUnavailable() Result {
	return Result{
		Success: false,
		Error:   "analytics cache is not initialized; enable it with the cache control action 'on'",
		Kind:    "cache_unavailable",
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func hoursOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
