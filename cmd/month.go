package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/timecalc"
)

var (
	monthFlag   string
	monthFormat string
	monthFile   string
)

var monthCmd = &cobra.Command{
	Use:   "month",
	Short: "Show or export a month of attendance records",
	Long: `Show the attendance records of a month. Without --format the result is
printed with the global --output format; --format csv|md|xlsx exports it,
to --file when given.`,
	Args: cobra.NoArgs,
	RunE: runMonth,
}

func init() {
	monthCmd.Flags().StringVar(&monthFlag, "month", "", "Month as YYYY-MM (default: current month)")
	monthCmd.Flags().StringVar(&monthFormat, "format", "", "Export format: csv, md, xlsx")
	monthCmd.Flags().StringVar(&monthFile, "file", "", "Write the export to this file (required for xlsx)")
}

func runMonth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		fail(err)
	}

	month := s.rec.Now()
	if monthFlag != "" {
		if month, err = timecalc.ParseMonth(monthFlag, displayLoc); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	records, err := s.rec.Month(ctx, month)
	if err != nil {
		fail(err)
	}
	attendance.SortByDate(records)
	result := MonthResult{
		Summary: attendance.Summarize(timecalc.MonthKey(month), records),
		Records: records,
	}

	if monthFormat == "" {
		if err := outputResult(os.Stdout, result, outputFormat); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return nil
	}

	var out io.Writer = os.Stdout
	if monthFile != "" {
		f, err := os.Create(monthFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	} else if monthFormat == "xlsx" {
		fmt.Fprintln(os.Stderr, "--format xlsx needs --file")
		os.Exit(1)
	}

	if err := writeExport(out, result, monthFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if monthFile != "" {
		fmt.Printf("Wrote %d records to %s\n", len(records), monthFile)
	}
	return nil
}

// writeExport writes result to w in an export format.
func writeExport(w io.Writer, result MonthResult, format string) error {
	switch format {
	case "csv":
		return writeCSV(w, result.Records)
	case "md":
		return writeMarkdown(w, result)
	case "xlsx":
		return writeXLSX(w, result)
	}
	return fmt.Errorf("unknown export format %q (want csv, md or xlsx)", format)
}

func writeCSV(w io.Writer, records []model.AttendanceDay) error {
	if _, err := fmt.Fprintln(w, "date,clock_in,clock_out,worked_minutes,status"); err != nil {
		return err
	}
	for _, d := range records {
		worked := ""
		if dur, ok := d.Worked(); ok {
			worked = fmt.Sprint(int64(dur.Minutes()))
		}
		if _, err := fmt.Fprintf(w, "%s,%s,%s,%s,%s\n",
			csvEscape(d.Date),
			csvEscape(rfc3339(d.ClockInTime)),
			csvEscape(rfc3339(d.ClockOutTime)),
			worked,
			csvEscape(attendance.DisplayStatusOf(d)),
		); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkdown(w io.Writer, result MonthResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Month %s\n", result.Summary.Month)
	fmt.Fprintln(&b, "--------------------------------")
	for _, d := range result.Records {
		worked := "open"
		if dur, ok := d.Worked(); ok {
			worked = timecalc.FormatDuration(int64(dur.Seconds()))
		}
		if !d.HasClockIn() {
			worked = "-"
		}
		fmt.Fprintf(&b, "%-12s%s–%s  %-10s%s\n", d.Date, clockTime(d.ClockInTime), clockTime(d.ClockOutTime), worked, attendance.DisplayStatusOf(d))
	}
	fmt.Fprintln(&b, "--------------------------------")
	for _, k := range sortedKeys(result.Summary.ByStatus) {
		fmt.Fprintf(&b, "%-20s%d\n", k, result.Summary.ByStatus[k])
	}
	fmt.Fprintf(&b, "%-20s%s\n", "Total", timecalc.FormatDuration(result.Summary.WorkedSeconds))
	_, err := io.WriteString(w, b.String())
	return err
}

func writeXLSX(w io.Writer, result MonthResult) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := result.Summary.Month
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := []interface{}{"Date", "Clock-in", "Clock-out", "Worked (h)", "Status"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, d := range result.Records {
		worked := interface{}("")
		if dur, ok := d.Worked(); ok {
			worked = float64(int64(dur.Minutes())) / 60
		}
		row := []interface{}{d.Date, clockTime(d.ClockInTime), clockTime(d.ClockOutTime), worked, attendance.DisplayStatusOf(d)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	totalRow := len(result.Records) + 3
	cell, err := excelize.CoordinatesToCellName(1, totalRow)
	if err != nil {
		return err
	}
	total := []interface{}{"Total", "", "", float64(result.Summary.WorkedSeconds/60) / 60}
	if err := f.SetSheetRow(sheet, cell, &total); err != nil {
		return err
	}
	return f.Write(w)
}

func rfc3339(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(displayLoc).Format(time.RFC3339)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	needsQuote := false
	for _, c := range s {
		if c == ',' || c == '"' || c == '\n' || c == '\r' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	// Escape internal double quotes by doubling them.
	escaped := ""
	for _, c := range s {
		if c == '"' {
			escaped += "\""
		}
		escaped += string(c)
	}
	return `"` + escaped + `"`
}
