package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/timecalc"
)

// StatusResult is the result of the status command.
type StatusResult struct {
	UserID string          `json:"userId"`
	Date   string          `json:"date"`
	Stale  bool            `json:"stale,omitempty"`
	View   attendance.View `json:"view"`
	// Record is the server record for today as last fetched, if any.
	Record *model.AttendanceDay `json:"record,omitempty"`
}

// MonthResult is the result of the month command.
type MonthResult struct {
	Summary model.MonthSummary    `json:"summary"`
	Records []model.AttendanceDay `json:"records"`
}

// OtpsResult is the result of the otps command.
type OtpsResult struct {
	Pending []model.OtpChallenge `json:"pending"`
}

// outputResult writes result to w in the given format.
func outputResult(w io.Writer, result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	case "table", "":
		return outputTable(w, result)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func outputJSON(w io.Writer, result interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(w io.Writer, result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func outputTable(out io.Writer, result interface{}) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case StatusResult:
		outputStatusTable(w, r)
	case MonthResult:
		outputMonthTable(w, r)
	case OtpsResult:
		outputOtpsTable(w, r)
	default:
		return outputJSON(out, result)
	}
	return nil
}

func outputStatusTable(w *tabwriter.Writer, r StatusResult) {
	v := r.View
	fmt.Fprintf(w, "USER\t%s\n", r.UserID)
	fmt.Fprintf(w, "DATE\t%s\n", r.Date)
	status := v.Status.DisplayStatus
	if r.Stale {
		status += " (offline, may be outdated)"
	}
	fmt.Fprintf(w, "STATUS\t%s\n", status)
	fmt.Fprintf(w, "STATE\t%s\n", v.State)
	if r.Record != nil {
		fmt.Fprintf(w, "CLOCK-IN\t%s\n", clockTime(r.Record.ClockInTime))
		fmt.Fprintf(w, "CLOCK-OUT\t%s\n", clockTime(r.Record.ClockOutTime))
		if worked, ok := r.Record.Worked(); ok {
			fmt.Fprintf(w, "WORKED\t%s\n", formatElapsed(int64(worked.Seconds())))
		}
	}
	if ch := v.Challenge; ch != nil {
		fmt.Fprintf(w, "PENDING\t%s (%s, %d attempts)\n", ch.Action.Label(), ch.Status, ch.Attempts)
	}
	fmt.Fprintf(w, "NEXT\t%s\n", nextStep(v))
}

func nextStep(v attendance.View) string {
	switch {
	case v.Challenge != nil:
		return "enter the code with punch " + commandFor(v.Challenge.Action) + " --otp <code>"
	case v.CanClockIn:
		return "punch in"
	case v.CanClockOut:
		return "punch out"
	}
	return "done for today"
}

func commandFor(a model.Action) string {
	if a == model.ActionClockOut {
		return "out"
	}
	return "in"
}

func outputMonthTable(w *tabwriter.Writer, r MonthResult) {
	fmt.Fprintln(w, "DATE\tIN\tOUT\tWORKED\tSTATUS")
	for _, d := range r.Records {
		worked := "-"
		if dur, ok := d.Worked(); ok {
			worked = timecalc.FormatDuration(int64(dur.Seconds()))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Date, clockTime(d.ClockInTime), clockTime(d.ClockOutTime), worked, attendance.DisplayStatusOf(d))
	}
	s := r.Summary
	fmt.Fprintf(w, "\nMONTH\t%s\n", s.Month)
	fmt.Fprintf(w, "DAYS\t%d (%d open)\n", s.Days, s.Open)
	fmt.Fprintf(w, "WORKED\t%s\n", timecalc.FormatDuration(s.WorkedSeconds))
	for _, k := range sortedKeys(s.ByStatus) {
		fmt.Fprintf(w, "%s\t%d\n", k, s.ByStatus[k])
	}
}

func outputOtpsTable(w *tabwriter.Writer, r OtpsResult) {
	if len(r.Pending) == 0 {
		fmt.Fprintln(w, "No pending codes.")
		return
	}
	fmt.Fprintln(w, "USER\tNAME\tACTION\tCODE\tEXPIRES")
	for _, o := range r.Pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.UserID, o.UserName, o.Action.Label(), o.Code, o.ExpiresAt.In(displayLoc).Format("15:04:05"))
	}
}

func clockTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.In(displayLoc).Format("15:04")
}
