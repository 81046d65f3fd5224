package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence_DailySameDay(t *testing.T) {
	rec := Recurrence{Pattern: PatternDaily, Hour: 18, Minute: 30}
	anchor := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC), next)
}

func TestNextOccurrence_DailyRollsToTomorrow(t *testing.T) {
	rec := Recurrence{Pattern: PatternDaily, Hour: 9, Minute: 0}

	// Exactly at the slot still rolls forward: "strictly after".
	anchor := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrence_WeeklyPicksNextListedDay(t *testing.T) {
	// Tuesday and Friday at 08:00. Anchor is Wednesday.
	rec := Recurrence{Pattern: PatternWeekly, DaysOfWeek: []int{2, 5}, Hour: 8, Minute: 0}
	anchor := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) // Wednesday

	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC), next) // Friday
	assert.Equal(t, time.Friday, next.Weekday())
}

func TestNextOccurrence_MonthlyClampsShortMonths(t *testing.T) {
	rec := Recurrence{Pattern: PatternMonthly, DayOfMonth: 31, Hour: 10, Minute: 0}
	anchor := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)
	// February 2026 has 28 days.
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrence_CronExpression(t *testing.T) {
	rec := Recurrence{Pattern: PatternCron, CronExpr: "0 12 * * 1"} // Mondays at noon
	anchor := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)          // Tuesday

	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrence_TimezoneAware(t *testing.T) {
	rec := Recurrence{Pattern: PatternDaily, Hour: 9, Minute: 0, Timezone: "America/New_York"}
	anchor := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // 7am in New York

	next, err := NextOccurrence(rec, anchor)
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 9, next.In(loc).Hour())
	assert.Equal(t, time.UTC, next.Location())
}

func TestValidate_RejectsBadDescriptors(t *testing.T) {
	cases := []struct {
		name string
		rec  Recurrence
	}{
		{"unknown pattern", Recurrence{Pattern: "yearly"}},
		{"weekly without days", Recurrence{Pattern: PatternWeekly, Hour: 9}},
		{"weekly bad day", Recurrence{Pattern: PatternWeekly, DaysOfWeek: []int{7}}},
		{"monthly day zero", Recurrence{Pattern: PatternMonthly}},
		{"hour out of range", Recurrence{Pattern: PatternDaily, Hour: 24}},
		{"bad cron", Recurrence{Pattern: PatternCron, CronExpr: "not a cron"}},
		{"bad timezone", Recurrence{Pattern: PatternDaily, Timezone: "Mars/Olympus"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.rec.Validate())
		})
	}
}

func TestSortedDays_DoesNotMutateInput(t *testing.T) {
	in := []int{5, 1, 3}
	out := SortedDays(in)
	assert.Equal(t, []int{1, 3, 5}, out)
	assert.Equal(t, []int{5, 1, 3}, in)
}
