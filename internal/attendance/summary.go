package attendance

import (
	"sort"

	"github.com/Tiliavir/punch/internal/model"
)

// Summarize counts records per display status and totals worked time.
// Records that are clocked in but not out count as open.
func Summarize(month string, records []model.AttendanceDay) model.MonthSummary {
	s := model.MonthSummary{
		Month:    month,
		ByStatus: make(map[string]int),
	}
	for _, rec := range records {
		s.Days++
		s.ByStatus[DisplayStatusOf(rec)]++
		if d, ok := rec.Worked(); ok {
			if d > 0 {
				s.WorkedSeconds += int64(d.Seconds())
			}
		} else if rec.HasClockIn() {
			s.Open++
		}
	}
	return s
}

// SortByDate orders records by calendar date, oldest first.
func SortByDate(records []model.AttendanceDay) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
}
