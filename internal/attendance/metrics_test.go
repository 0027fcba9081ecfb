package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageOf(t *testing.T) {
	assert.Equal(t, 0.0, PercentageOf(0, 0))
	assert.Equal(t, 75.0, PercentageOf(75, 100))
	assert.Equal(t, 75.0, PercentageOf(3, 4))
	assert.Equal(t, 0.0, PercentageOf(5, 0))
}

// slowCanMiss is the reference iterative definition the projection must
// reproduce at boundary values.
func slowCanMiss(attended, total int) int {
	canMiss := 0
	for float64(attended)/float64(total+canMiss+1)*100 >= 75 {
		canMiss++
	}
	return canMiss
}

func TestProjectTo75AtExactThreshold(t *testing.T) {
	p := ProjectTo75(75, 100)
	assert.True(t, p.AboveThreshold)
	assert.Equal(t, "Can Miss", p.Label)
	// Exactly at threshold: one more miss drops below 75%.
	assert.Equal(t, 0, p.Value)
	assert.Equal(t, slowCanMiss(75, 100), p.Value)
}

func TestProjectTo75AboveThreshold(t *testing.T) {
	p := ProjectTo75(80, 100)
	assert.True(t, p.AboveThreshold)
	assert.Equal(t, slowCanMiss(80, 100), p.Value)
	assert.Equal(t, 6, p.Value)

	// 80/(100+6+1) is still >= 75%, 80/(100+7+1) is not.
	assert.GreaterOrEqual(t, float64(80)/float64(100+p.Value+1)*100, 75.0)
	assert.Less(t, float64(80)/float64(100+p.Value+2)*100, 75.0)
}

func TestProjectTo75IterativeAgreement(t *testing.T) {
	cases := []struct{ attended, total int }{
		{3, 4}, {4, 5}, {9, 12}, {30, 40}, {76, 100}, {90, 120}, {1, 1},
	}
	for _, tc := range cases {
		p := ProjectTo75(tc.attended, tc.total)
		require.True(t, p.AboveThreshold, "attended=%d total=%d", tc.attended, tc.total)
		assert.Equal(t, slowCanMiss(tc.attended, tc.total), p.Value,
			"attended=%d total=%d", tc.attended, tc.total)
	}
}

func TestProjectTo75BelowThreshold(t *testing.T) {
	p := ProjectTo75(50, 100)
	assert.False(t, p.AboveThreshold)
	assert.Equal(t, "Need", p.Label)
	assert.Equal(t, 100, p.Value)

	// Attending that many classes reaches the target exactly.
	assert.GreaterOrEqual(t, PercentageOf(50+p.Value, 100+p.Value), 75.0)
}

func TestProjectTo75NoClasses(t *testing.T) {
	p := ProjectTo75(0, 0)
	assert.False(t, p.AboveThreshold)
	assert.Equal(t, 0, p.Value)
}

func TestGroupByCourse(t *testing.T) {
	records := []Record{
		{CourseName: "CS101", Status: StatusPresent},
		{CourseName: "CS101", Status: StatusAbsent},
		{CourseName: "MA201", Status: StatusUnknown},
	}
	groups := GroupByCourse(records)
	assert.Equal(t, Tally{Present: 1, Total: 2}, groups["CS101"])
	// Unknown counts toward total but not present.
	assert.Equal(t, Tally{Present: 0, Total: 1}, groups["MA201"])
}

func TestGroupByPeriod(t *testing.T) {
	day := func(d int, status Status) Record {
		return Record{
			MarkedAt: time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC),
			Status:   status,
		}
	}
	records := []Record{
		day(4, StatusPresent), day(4, StatusAbsent),
		day(5, StatusPresent),
		day(12, StatusPresent),
	}

	byDay := GroupByPeriod(records, ByDay)
	assert.Equal(t, Tally{Present: 1, Total: 2}, byDay["2024-03-04"])
	assert.Equal(t, Tally{Present: 1, Total: 1}, byDay["2024-03-05"])

	byWeek := GroupByPeriod(records, ByWeek)
	assert.Equal(t, Tally{Present: 2, Total: 3}, byWeek["2024-W10"])
	assert.Equal(t, Tally{Present: 1, Total: 1}, byWeek["2024-W11"])

	byMonth := GroupByPeriod(records, ByMonth)
	assert.Equal(t, Tally{Present: 3, Total: 4}, byMonth["2024-03"])

	asc := SortedPeriodKeys(byDay, false)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05", "2024-03-12"}, asc)
	desc := SortedPeriodKeys(byDay, true)
	assert.Equal(t, []string{"2024-03-12", "2024-03-05", "2024-03-04"}, desc)
}

func TestGroupByPeriodSkipsZeroTimes(t *testing.T) {
	records := []Record{{Status: StatusPresent}}
	assert.Empty(t, GroupByPeriod(records, ByDay))
}

func TestDayOfWeekDistribution(t *testing.T) {
	// 2024-03-03 is a Sunday.
	records := []Record{
		{MarkedAt: time.Date(2024, time.March, 3, 9, 0, 0, 0, time.UTC), Status: StatusPresent},
		{MarkedAt: time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC), Status: StatusAbsent},
		{MarkedAt: time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC), Status: StatusPresent},
	}
	dist := DayOfWeekDistribution(records)
	assert.Equal(t, Tally{Present: 1, Total: 1}, dist[0])
	assert.Equal(t, Tally{Present: 1, Total: 2}, dist[1])
	assert.Equal(t, Tally{}, dist[3])
}

func TestFilterRecords(t *testing.T) {
	at := func(d int) time.Time { return time.Date(2024, time.March, d, 10, 0, 0, 0, time.UTC) }
	records := []Record{
		{CourseName: "CS101", Status: StatusPresent, MarkedAt: at(1)},
		{CourseName: "CS101", Status: StatusAbsent, MarkedAt: at(5)},
		{CourseName: "MA201", Status: StatusPresent, MarkedAt: at(5)},
		{CourseName: "CS101", Status: StatusPresent, MarkedAt: at(9)},
	}

	byCourse := FilterRecords(records, RecordFilter{Course: "CS101"})
	assert.Len(t, byCourse, 3)

	// Inclusive bounds on both ends.
	ranged := FilterRecords(records, RecordFilter{From: at(1), To: at(5)})
	assert.Len(t, ranged, 3)

	combined := FilterRecords(records, RecordFilter{
		Course: "CS101",
		From:   at(2),
		Status: StatusPresent,
	})
	require.Len(t, combined, 1)
	assert.Equal(t, at(9), combined[0].MarkedAt)
}

func TestSortRecords(t *testing.T) {
	at := func(d int) time.Time { return time.Date(2024, time.March, d, 10, 0, 0, 0, time.UTC) }
	records := []Record{
		{CourseName: "a", MarkedAt: at(2)},
		{CourseName: "b", Date: at(9)}, // no markedAt, date is the fallback
		{CourseName: "c", MarkedAt: at(5)},
	}
	SortRecords(records)
	assert.Equal(t, "b", records[0].CourseName)
	assert.Equal(t, "c", records[1].CourseName)
	assert.Equal(t, "a", records[2].CourseName)
}
