package timeutils

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// Supported recurrence patterns.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternCron    = "cron"
)

// Recurrence describes a repeating schedule. Hour and Minute are interpreted
// in Timezone (IANA name, empty means UTC). DaysOfWeek uses 0=Sunday..6=Saturday.
// DayOfMonth is clamped to the length of the target month, so 31 means
// "last day" in shorter months.
type Recurrence struct {
	Pattern    string `json:"pattern"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	CronExpr   string `json:"cron_expr,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// Validate checks the recurrence descriptor without computing anything.
func (r Recurrence) Validate() error {
	if _, err := r.location(); err != nil {
		return err
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23")
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("minute must be between 0 and 59")
	}
	switch r.Pattern {
	case PatternDaily:
		return nil
	case PatternWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly recurrence requires at least one day of week")
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("day of week must be between 0 and 6")
			}
		}
		return nil
	case PatternMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("day of month must be between 1 and 31")
		}
		return nil
	case PatternCron:
		if _, err := cronParser.Parse(r.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence pattern: %q", r.Pattern)
	}
}

// NextOccurrence returns the first occurrence of the recurrence strictly after
// the given anchor. The computation happens in the configured location so DST
// shifts don't drift the local wall-clock time; the result is returned in UTC.
func NextOccurrence(rec Recurrence, after time.Time) (time.Time, error) {
	if err := rec.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := rec.location()
	if err != nil {
		return time.Time{}, err
	}
	local := after.In(loc)

	switch rec.Pattern {
	case PatternDaily:
		return nextDaily(rec, local, loc), nil
	case PatternWeekly:
		return nextWeekly(rec, local, loc), nil
	case PatternMonthly:
		return nextMonthly(rec, local, loc), nil
	case PatternCron:
		sched, err := cronParser.Parse(rec.CronExpr)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(local).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unknown recurrence pattern: %q", rec.Pattern)
}

// standard 5-field cron, minute resolution
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (r Recurrence) location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

func nextDaily(rec Recurrence, local time.Time, loc *time.Location) time.Time {
	candidate := time.Date(local.Year(), local.Month(), local.Day(), rec.Hour, rec.Minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, rec.Hour, rec.Minute, 0, 0, loc)
	}
	return candidate.UTC()
}

func nextWeekly(rec Recurrence, local time.Time, loc *time.Location) time.Time {
	target := make(map[int]bool, len(rec.DaysOfWeek))
	for _, d := range rec.DaysOfWeek {
		target[d] = true
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), rec.Hour, rec.Minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	// at most one full week of day steps
	for i := 0; i < 8; i++ {
		if target[int(candidate.Weekday())] {
			return candidate.UTC()
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.UTC()
}

func nextMonthly(rec Recurrence, local time.Time, loc *time.Location) time.Time {
	year, month := local.Year(), local.Month()
	candidate := monthlyCandidate(year, month, rec, loc)
	if !candidate.After(local) {
		year, month = nextMonth(year, month)
		candidate = monthlyCandidate(year, month, rec, loc)
	}
	return candidate.UTC()
}

func monthlyCandidate(year int, month time.Month, rec Recurrence, loc *time.Location) time.Time {
	day := rec.DayOfMonth
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, rec.Hour, rec.Minute, 0, 0, loc)
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SortedDays returns a copy of days sorted ascending, for stable serialization.
func SortedDays(days []int) []int {
	out := append([]int(nil), days...)
	sort.Ints(out)
	return out
}
