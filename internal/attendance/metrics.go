package attendance

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Tally is a present/total bucket shared by all rollups. Absent and unknown
// records count toward Total only.
type Tally struct {
	Present int `json:"present"`
	Total   int `json:"total"`
}

// Percentage returns the bucket's attendance percentage.
func (t Tally) Percentage() float64 { return PercentageOf(t.Present, t.Total) }

// PercentageOf is the single divide-by-zero-safe percentage helper used by
// every calculation in this package.
func PercentageOf(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(attended) / float64(total) * 100
}

// projectionTarget is the university's minimum attendance requirement.
const projectionTarget = 75

// Projection is the headline "can miss / need to attend" figure.
type Projection struct {
	AboveThreshold bool   `json:"aboveThreshold"`
	Value          int    `json:"value"`
	Label          string `json:"label"`
}

// ProjectTo75 computes how many future classes can still be missed while
// staying at or above 75%, or how many must be attended to get there.
//
// The can-miss branch follows the iterative definition: starting at zero,
// keep incrementing while attended/(total+canMiss+1) stays at or above 75%.
// At exactly 75% this yields zero, which a naive closed-form floor does not
// guarantee at boundary values.
func ProjectTo75(attended, total int) Projection {
	if PercentageOf(attended, total) >= projectionTarget {
		canMiss := 0
		for float64(attended)/float64(total+canMiss+1)*100 >= projectionTarget {
			canMiss++
		}
		return Projection{AboveThreshold: true, Value: canMiss, Label: "Can Miss"}
	}

	// Integer-class model: target 75 out of 100 percentage points, so each
	// attended class closes a 25-point gap.
	needed := int(math.Ceil(float64(projectionTarget*total-100*attended) / float64(100-projectionTarget)))
	if needed < 0 {
		needed = 0
	}
	return Projection{AboveThreshold: false, Value: needed, Label: "Need"}
}

// GroupByCourse tallies records per course name.
func GroupByCourse(records []Record) map[string]Tally {
	out := make(map[string]Tally)
	for _, rec := range records {
		tally := out[rec.CourseName]
		tally.Total++
		if rec.Status.IsPresent() {
			tally.Present++
		}
		out[rec.CourseName] = tally
	}
	return out
}

// Granularity selects the calendar bucket for period rollups.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByWeek  Granularity = "week"
	ByMonth Granularity = "month"
)

// PeriodKey formats the bucket key for a timestamp at the given granularity.
// Keys sort chronologically as strings.
func PeriodKey(t time.Time, g Granularity) string {
	switch g {
	case ByWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case ByMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// GroupByPeriod tallies records into local calendar buckets. Key iteration
// order is the consumer's choice (SortedPeriodKeys): ascending for charts,
// descending for summaries.
func GroupByPeriod(records []Record, g Granularity) map[string]Tally {
	out := make(map[string]Tally)
	for _, rec := range records {
		when := rec.When()
		if when.IsZero() {
			continue
		}
		key := PeriodKey(when, g)
		tally := out[key]
		tally.Total++
		if rec.Status.IsPresent() {
			tally.Present++
		}
		out[key] = tally
	}
	return out
}

// SortedPeriodKeys returns the rollup keys in chronological order, or newest
// first when descending is set.
func SortedPeriodKeys(buckets map[string]Tally, descending bool) []string {
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if descending {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	return keys
}

// DayOfWeekDistribution tallies records by weekday, Sunday=0.
func DayOfWeekDistribution(records []Record) [7]Tally {
	var out [7]Tally
	for _, rec := range records {
		when := rec.When()
		if when.IsZero() {
			continue
		}
		day := int(when.Weekday())
		out[day].Total++
		if rec.Status.IsPresent() {
			out[day].Present++
		}
	}
	return out
}

// RecordFilter selects records by course, inclusive date range, and status.
// Zero-valued fields are ignored; set fields combine with AND semantics.
type RecordFilter struct {
	Course string
	From   time.Time
	To     time.Time
	Status Status
}

// FilterRecords returns the records matching the filter.
func FilterRecords(records []Record, filter RecordFilter) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if filter.Course != "" && rec.CourseName != filter.Course {
			continue
		}
		when := rec.When()
		if !filter.From.IsZero() && when.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && when.After(filter.To) {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out
}
