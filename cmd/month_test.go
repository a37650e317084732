package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
)

func TestCsvEscape(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"with space", "with space"},
		{"with,comma", `"with,comma"`},
		{`with"quote`, `"with""quote"`},
		{"with\nnewline", "\"with\nnewline\""},
		{"with\rreturn", "\"with\rreturn\""},
		{"", ""},
	}
	for _, tt := range tests {
		got := csvEscape(tt.input)
		if got != tt.want {
			t.Errorf("csvEscape(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func monthFixture() MonthResult {
	in1 := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	out1 := time.Date(2026, 10, 1, 17, 0, 0, 0, time.UTC)
	in2 := time.Date(2026, 10, 2, 9, 15, 0, 0, time.UTC)
	records := []model.AttendanceDay{
		{UserID: testUser, Date: "2026-10-02", ClockInTime: &in2, Status: model.StatusLate},
		{UserID: testUser, Date: "2026-10-01", ClockInTime: &in1, ClockOutTime: &out1, Status: model.StatusOnTime},
		{UserID: testUser, Date: "2026-10-03", Status: model.StatusAbsent},
	}
	attendance.SortByDate(records)
	return MonthResult{Summary: attendance.Summarize("2026-10", records), Records: records}
}

func TestWriteCSV(t *testing.T) {
	useUTC(t)
	var b bytes.Buffer
	require.NoError(t, writeExport(&b, monthFixture(), "csv"))

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "date,clock_in,clock_out,worked_minutes,status", lines[0])
	assert.Equal(t, "2026-10-01,2026-10-01T08:30:00Z,2026-10-01T17:00:00Z,510,ON_TIME", lines[1])
	assert.Equal(t, "2026-10-02,2026-10-02T09:15:00Z,,,LATE", lines[2])
	assert.Equal(t, "2026-10-03,,,,ABSENT", lines[3])
}

func TestWriteMarkdown(t *testing.T) {
	useUTC(t)
	var b bytes.Buffer
	require.NoError(t, writeExport(&b, monthFixture(), "md"))

	got := b.String()
	assert.True(t, strings.HasPrefix(got, "Month 2026-10\n"))
	assert.Contains(t, got, "08:30–17:00")
	assert.Contains(t, got, "open")
	assert.Contains(t, got, "LATE")
	assert.Contains(t, got, "Total               8h 30m")
}

func TestWriteXLSX(t *testing.T) {
	useUTC(t)
	var b bytes.Buffer
	require.NoError(t, writeExport(&b, monthFixture(), "xlsx"))

	f, err := excelize.OpenReader(&b)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"2026-10"}, f.GetSheetList())
	cell := func(name string) string {
		v, err := f.GetCellValue("2026-10", name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Date", cell("A1"))
	assert.Equal(t, "2026-10-01", cell("A2"))
	assert.Equal(t, "08:30", cell("B2"))
	assert.Equal(t, "8.5", cell("D2"))
	assert.Equal(t, "LATE", cell("E3"))
	assert.Equal(t, "Total", cell("A6"))
	assert.Equal(t, "8.5", cell("D6"))
}

func TestWriteExportUnknownFormat(t *testing.T) {
	err := writeExport(&bytes.Buffer{}, monthFixture(), "pdf")
	assert.Error(t, err)
}
