package attendance

import (
	"encoding/json"
)

// statsEnvelope covers both observed upstream statistics shapes. RawMessage
// fields distinguish "key absent" from "key empty", which drives shape
// detection.
type statsEnvelope struct {
	Overall  json.RawMessage `json:"overall"`
	ByCourse json.RawMessage `json:"byCourse"`

	// Flat shape fields.
	OverallAttendance        *float64        `json:"overallAttendance"`
	AttendedClassesThisMonth int             `json:"attendedClassesThisMonth"`
	TotalClassesThisMonth    int             `json:"totalClassesThisMonth"`
	MonthlyAttendance        float64         `json:"monthlyAttendance"`
	WeeklyAttendance         float64         `json:"weeklyAttendance"`
	TotalEnrolledCourses     *int            `json:"totalEnrolledCourses"`
	RecentActivity           json.RawMessage `json:"recentActivity"`
}

// NormalizeStats converts an upstream statistics payload of either shape into
// one canonical Snapshot. It never fails hard: undecodable or empty input
// yields a zeroed snapshot, and the returned error exists only so callers can
// log the shape problem as a warning.
func NormalizeStats(raw []byte) (Snapshot, error) {
	var env statsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{ByCourse: []CourseStat{}}, err
	}

	byCourse := decodeCourseStats(env.ByCourse)

	// Canonical shape: overall and byCourse both present, pass through.
	if env.Overall != nil && env.ByCourse != nil {
		var overall OverallStats
		if err := json.Unmarshal(env.Overall, &overall); err != nil {
			return Snapshot{ByCourse: []CourseStat{}}, err
		}
		snap := Snapshot{
			Overall:        overall,
			ByCourse:       byCourse,
			ActiveCourses:  len(byCourse),
			RecentActivity: env.RecentActivity,
		}
		snap.MonthlyAttended = env.AttendedClassesThisMonth
		snap.MonthlyTotal = env.TotalClassesThisMonth
		return snap, nil
	}

	// Flat shape: derive overall totals by summing the course breakdown.
	totalAttended := 0
	totalClasses := 0
	for _, course := range byCourse {
		totalAttended += course.AttendedClasses
		totalClasses += course.TotalClasses
	}

	percentage := PercentageOf(totalAttended, totalClasses)
	if env.OverallAttendance != nil {
		// Upstream-supplied display percentage wins; derived sums are kept.
		percentage = *env.OverallAttendance
	}

	activeCourses := len(byCourse)
	if env.TotalEnrolledCourses != nil {
		activeCourses = *env.TotalEnrolledCourses
	}

	return Snapshot{
		Overall: OverallStats{
			Percentage:        percentage,
			AttendedClasses:   totalAttended,
			TotalClasses:      totalClasses,
			MonthlyPercentage: env.MonthlyAttendance,
			WeeklyPercentage:  env.WeeklyAttendance,
		},
		ByCourse:        byCourse,
		MonthlyAttended: env.AttendedClassesThisMonth,
		MonthlyTotal:    env.TotalClassesThisMonth,
		ActiveCourses:   activeCourses,
		RecentActivity:  env.RecentActivity,
	}, nil
}

// decodeCourseStats decodes the per-course array, filling in percentages the
// upstream omitted. Upstream sometimes supplies percentage directly and
// sometimes only counts.
func decodeCourseStats(raw json.RawMessage) []CourseStat {
	if raw == nil {
		return []CourseStat{}
	}
	var stats []CourseStat
	if err := json.Unmarshal(raw, &stats); err != nil {
		return []CourseStat{}
	}
	for i := range stats {
		if stats[i].Percentage == 0 && stats[i].TotalClasses > 0 {
			stats[i].Percentage = PercentageOf(stats[i].AttendedClasses, stats[i].TotalClasses)
		}
	}
	return stats
}

// MergeStats combines the upstream headline stats body with the by-course
// breakdown body into one payload for normalization. The breakdown endpoint
// either wraps its array in a byCourse field or returns the array directly.
func MergeStats(headline, byCourse []byte) []byte {
	merged := map[string]json.RawMessage{}
	if len(headline) > 0 {
		_ = json.Unmarshal(headline, &merged)
	}

	var wrapper struct {
		ByCourse json.RawMessage `json:"byCourse"`
	}
	if err := json.Unmarshal(byCourse, &wrapper); err == nil && wrapper.ByCourse != nil {
		merged["byCourse"] = wrapper.ByCourse
	} else if len(byCourse) > 0 {
		merged["byCourse"] = byCourse
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return headline
	}
	return out
}
