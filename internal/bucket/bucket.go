// Package bucket classifies chores by due date into urgency buckets.
// All comparisons happen at local calendar midnight so a chore due "today"
// stays in today's bucket until the clock rolls over, regardless of the
// time-of-day component the backend happened to store.
package bucket

import (
	"time"

	"github.com/stillon/choremane/internal/model"
)

// Name identifies one of the mutually exclusive due-date buckets.
type Name string

const (
	Overdue  Name = "overdue"
	Today    Name = "today"
	Tomorrow Name = "tomorrow"
	ThisWeek Name = "thisWeek"
	Upcoming Name = "upcoming"
)

// dateLayouts are tried in order when normalizing a due-date value.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalize parses a due-date value and truncates it to local midnight in
// loc. ok is false for empty or unparseable values.
func Normalize(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			continue
		}
		return startOfDay(t.In(loc)), true
	}
	return time.Time{}, false
}

// Boundaries holds the day boundaries a partition was computed against.
type Boundaries struct {
	Today    time.Time
	Tomorrow time.Time
	NextWeek time.Time
}

// Result is a full partition of non-archived, resolvable chores.
type Result struct {
	Buckets    map[Name][]model.Chore
	All        []model.Chore
	Counts     model.ChoreCounts
	Boundaries Boundaries
}

// ComputeBoundaries returns local-midnight boundaries relative to now:
// today, today+1, and today+7.
func ComputeBoundaries(now time.Time) Boundaries {
	today := startOfDay(now)
	return Boundaries{
		Today:    today,
		Tomorrow: today.AddDate(0, 0, 1),
		NextWeek: today.AddDate(0, 0, 7),
	}
}

// Classify places a single normalized due date into its bucket.
// Boundary policy: overdue < today; today == today; tomorrow == today+1;
// today+1 < thisWeek <= today+7; upcoming > today+7.
func Classify(due time.Time, b Boundaries) Name {
	switch {
	case due.Before(b.Today):
		return Overdue
	case due.Equal(b.Today):
		return Today
	case due.Equal(b.Tomorrow):
		return Tomorrow
	case !due.After(b.NextWeek):
		return ThisWeek
	default:
		return Upcoming
	}
}

// Partition assigns each non-archived chore with a resolvable due date to
// exactly one bucket. Archived chores and chores with unparseable due dates
// are excluded entirely rather than defaulted into a bucket.
func Partition(chores []model.Chore, now time.Time) Result {
	b := ComputeBoundaries(now)
	res := Result{
		Buckets:    make(map[Name][]model.Chore, 5),
		Boundaries: b,
	}

	for _, c := range chores {
		if c.Archived {
			continue
		}
		due, ok := Normalize(c.DueDate, now.Location())
		if !ok {
			continue
		}

		res.All = append(res.All, c)
		res.Counts.All++

		name := Classify(due, b)
		res.Buckets[name] = append(res.Buckets[name], c)
		switch name {
		case Overdue:
			res.Counts.Overdue++
		case Today:
			res.Counts.Today++
		case Tomorrow:
			res.Counts.Tomorrow++
		case ThisWeek:
			res.Counts.ThisWeek++
		case Upcoming:
			res.Counts.Upcoming++
		}
	}
	return res
}

// DisabledToday reports whether a chore should be rendered disabled: it has
// an interval and its due date lands on today's date.
func DisabledToday(c model.Chore, now time.Time) bool {
	if c.IntervalDays == nil {
		return false
	}
	due, ok := Normalize(c.DueDate, now.Location())
	if !ok {
		return false
	}
	return due.Equal(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
