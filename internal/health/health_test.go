package health

import (
	"math"
	"testing"
	"time"

	"github.com/stillon/choremane/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestChoreScoreBoundaries(t *testing.T) {
	due := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	const interval = 10 // days

	cases := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"exactly at due instant", due, 80},
		{"one full interval overdue", due.AddDate(0, 0, interval), 0},
		{"half interval elapsed", due.AddDate(0, 0, -interval/2), 100},
		{"75% elapsed", due.Add(-time.Duration(interval) * 24 * time.Hour / 4), 90},
		{"beyond one interval overdue stays at zero", due.AddDate(0, 0, 2*interval), 0},
		{"fresh start", due.AddDate(0, 0, -interval), 100},
	}
	for _, tc := range cases {
		if got := ChoreScore(due, interval, tc.now); !almostEqual(got, tc.want) {
			t.Errorf("%s: score = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestChoreScoreHalfIntervalOverdue(t *testing.T) {
	due := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	now := due.AddDate(0, 0, 5) // half of a 10-day interval overdue
	if got := ChoreScore(due, 10, now); !almostEqual(got, 40) {
		t.Errorf("score = %v, want 40", got)
	}
}

func TestScoreAveragesEligibleChores(t *testing.T) {
	now := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	ten := 10

	atDue := model.Chore{ID: 1, DueDate: "2026-02-05", IntervalDays: &ten}
	fresh := model.Chore{ID: 2, DueDate: "2026-02-15", IntervalDays: &ten}

	// (80 + 100) / 2 = 90
	if got := Score([]model.Chore{atDue, fresh}, now); got != 90 {
		t.Errorf("score = %d, want 90", got)
	}
}

func TestScoreIgnoresIneligible(t *testing.T) {
	now := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	ten := 10

	archived := model.Chore{ID: 1, DueDate: "2026-01-01", IntervalDays: &ten, Archived: true}
	noInterval := model.Chore{ID: 2, DueDate: "2026-01-01"}
	badDate := model.Chore{ID: 3, DueDate: "soon", IntervalDays: &ten}

	if got := Score([]model.Chore{archived, noInterval, badDate}, now); got != 100 {
		t.Errorf("score with no eligible chores = %d, want 100", got)
	}
}

func TestScoreEmpty(t *testing.T) {
	if got := Score(nil, time.Now()); got != 100 {
		t.Errorf("score = %d, want 100", got)
	}
}
