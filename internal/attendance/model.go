package attendance

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Status of a single marked class. Anything the upstream sends that is not
// exactly PRESENT counts as not-present for percentage purposes, but UNKNOWN
// is kept distinct for display.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusUnknown Status = "UNKNOWN"
)

// ParseStatus maps an upstream status string to the canonical enum.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StatusPresent):
		return StatusPresent
	case string(StatusAbsent):
		return StatusAbsent
	default:
		return StatusUnknown
	}
}

// IsPresent reports whether the status counts toward attended classes.
func (s Status) IsPresent() bool { return s == StatusPresent }

// ClassType distinguishes regular university classes from lab sessions.
type ClassType string

const (
	ClassTypeRTU  ClassType = "RTU_CLASSES"
	ClassTypeLabs ClassType = "LABS"
)

// Record is one marked attendance event in canonical form. It is produced by
// a single normalization step at ingestion; downstream code never re-derives
// optional-field fallbacks.
type Record struct {
	Date       time.Time `json:"date"`
	MarkedAt   time.Time `json:"markedAt"`
	Status     Status    `json:"status"`
	CourseName string    `json:"courseName"`
	ClassType  ClassType `json:"classType,omitempty"`
	Teacher    string    `json:"teacher,omitempty"`
	Semester   string    `json:"semester,omitempty"`
	Section    string    `json:"section,omitempty"`
}

// When returns the best event timestamp: markedAt carries time of day, date
// may be date-only and is the fallback.
func (r Record) When() time.Time {
	if !r.MarkedAt.IsZero() {
		return r.MarkedAt
	}
	return r.Date
}

// SortRecords orders records newest first by markedAt, falling back to date.
// Upstream does not guarantee any ordering across pages.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].When().After(records[j].When())
	})
}

// rawRecord mirrors the upstream record payload, which nests course, teacher,
// semester and section references but is also seen with flat fallback fields.
type rawRecord struct {
	Date     string `json:"date"`
	MarkedAt string `json:"markedAt"`
	Status   string `json:"status"`
	Course   *struct {
		Name      string `json:"name"`
		ClassType string `json:"classType"`
	} `json:"course"`
	CourseName string `json:"courseName"`
	Teacher    *struct {
		Name string `json:"name"`
	} `json:"teacher"`
	Semester *struct {
		Name string `json:"name"`
	} `json:"semester"`
	Section *struct {
		Name string `json:"name"`
	} `json:"section"`
}

// recordTimeLayouts are tried in order when parsing upstream timestamps.
// markedAt is RFC3339, date is sometimes date-only.
var recordTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func parseRecordTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range recordTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// normalize resolves the nested-vs-flat reference fields exactly once.
func (raw rawRecord) normalize() Record {
	rec := Record{
		Date:     parseRecordTime(raw.Date),
		MarkedAt: parseRecordTime(raw.MarkedAt),
		Status:   ParseStatus(raw.Status),
	}
	if raw.Course != nil && raw.Course.Name != "" {
		rec.CourseName = raw.Course.Name
		rec.ClassType = ClassType(raw.Course.ClassType)
	} else if raw.CourseName != "" {
		rec.CourseName = raw.CourseName
	} else {
		rec.CourseName = "Unknown"
	}
	if raw.Teacher != nil {
		rec.Teacher = raw.Teacher.Name
	}
	if raw.Semester != nil {
		rec.Semester = raw.Semester.Name
	}
	if raw.Section != nil {
		rec.Section = raw.Section.Name
	}
	return rec
}

// CourseStat is the per-course aggregate as exposed to consumers.
type CourseStat struct {
	CourseName      string    `json:"courseName"`
	ClassType       ClassType `json:"classType,omitempty"`
	SectionName     string    `json:"sectionName,omitempty"`
	AttendedClasses int       `json:"attendedClasses"`
	TotalClasses    int       `json:"totalClasses"`
	Percentage      float64   `json:"percentage"`
}

// OverallStats are the headline figures derived from (or supplied with) the
// per-course breakdown.
type OverallStats struct {
	Percentage        float64 `json:"percentage"`
	AttendedClasses   int     `json:"attendedClasses"`
	TotalClasses      int     `json:"totalClasses"`
	MonthlyPercentage float64 `json:"monthlyPercentage"`
	WeeklyPercentage  float64 `json:"weeklyPercentage"`
}

// Snapshot is one fully loaded set of attendance data for a session. It is
// immutable to consumers and superseded wholesale by the next successful load.
type Snapshot struct {
	Overall         OverallStats    `json:"overall"`
	ByCourse        []CourseStat    `json:"byCourse"`
	MonthlyAttended int             `json:"monthlyAttended"`
	MonthlyTotal    int             `json:"monthlyTotal"`
	ActiveCourses   int             `json:"activeCourses"`
	RecentActivity  json.RawMessage `json:"recentActivity,omitempty"`
}
