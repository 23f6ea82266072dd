// Package health computes the household health score: a continuous 0-100
// freshness metric over recurring chores, piecewise linear in the fraction
// of the interval elapsed.
package health

import (
	"math"
	"time"

	"github.com/stillon/choremane/internal/bucket"
	"github.com/stillon/choremane/internal/model"
)

// ChoreScore scores a single chore given its due instant and interval.
//
//	fresh    (0-50% of interval elapsed):   100
//	standard (50-100% elapsed):             decays 100 -> 80
//	overdue  (past due):                    decays 80 -> 0 over one interval
//
// A chore exactly at its due instant scores 80; one full interval overdue
// scores 0 and stays there.
func ChoreScore(due time.Time, intervalDays int, now time.Time) float64 {
	interval := time.Duration(intervalDays) * 24 * time.Hour
	diff := now.Sub(due)

	if diff > 0 {
		overdueRatio := float64(diff) / float64(interval)
		return math.Max(0, 80-overdueRatio*80)
	}

	elapsed := 1 - float64(-diff)/float64(interval)
	elapsed = math.Max(0, math.Min(1, elapsed))
	if elapsed <= 0.5 {
		return 100
	}
	return 100 - (elapsed-0.5)*40
}

// Score averages ChoreScore over all non-archived chores with a positive
// interval and a resolvable due date. With no eligible chores the household
// is considered fully healthy.
func Score(chores []model.Chore, now time.Time) int {
	var total float64
	var eligible int

	for _, c := range chores {
		if c.Archived || c.Interval() <= 0 {
			continue
		}
		due, ok := bucket.Normalize(c.DueDate, now.Location())
		if !ok {
			continue
		}
		total += ChoreScore(due, c.Interval(), now)
		eligible++
	}

	if eligible == 0 {
		return 100
	}
	return int(math.Round(total / float64(eligible)))
}
