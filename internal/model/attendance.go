package model

import "time"

// Status is the server-assigned classification of an attendance day.
type Status string

const (
	StatusOnTime  Status = "ON_TIME"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
	StatusHalfDay Status = "HALF_DAY"
	StatusPresent Status = "PRESENT"
)

// NotMarked is the display status of a day with no clock-in at all.
const NotMarked = "Not Marked"

// DateLayout is the calendar-day key format used on the wire and on disk.
const DateLayout = "2006-01-02"

// AttendanceDay is the server's record for one user on one calendar date.
// ClockOutTime set implies ClockInTime set.
type AttendanceDay struct {
	UserID       string     `json:"user_id"`
	Date         string     `json:"date"`
	ClockInTime  *time.Time `json:"clock_in_time"`
	ClockOutTime *time.Time `json:"clock_out_time"`
	Status       Status     `json:"status,omitempty"`
}

// HasClockIn reports whether the record carries a clock-in time.
func (d *AttendanceDay) HasClockIn() bool {
	return d != nil && d.ClockInTime != nil && !d.ClockInTime.IsZero()
}

// HasClockOut reports whether the record carries a clock-out time.
func (d *AttendanceDay) HasClockOut() bool {
	return d != nil && d.ClockOutTime != nil && !d.ClockOutTime.IsZero()
}

// Empty reports whether the record exists but has neither time set.
func (d *AttendanceDay) Empty() bool {
	return d != nil && !d.HasClockIn() && !d.HasClockOut()
}

// Worked returns the time between clock-in and clock-out. ok is false while
// the day is still open.
func (d *AttendanceDay) Worked() (dur time.Duration, ok bool) {
	if !d.HasClockIn() || !d.HasClockOut() {
		return 0, false
	}
	return d.ClockOutTime.Sub(*d.ClockInTime), true
}

// Clone returns a deep copy so cached records are never shared.
func (d *AttendanceDay) Clone() *AttendanceDay {
	if d == nil {
		return nil
	}
	c := *d
	if d.ClockInTime != nil {
		t := *d.ClockInTime
		c.ClockInTime = &t
	}
	if d.ClockOutTime != nil {
		t := *d.ClockOutTime
		c.ClockOutTime = &t
	}
	return &c
}

// LocalFlags is the client-persisted tentative view of today.
type LocalFlags struct {
	ClockedIn  bool
	ClockedOut bool
}

// ClockStatus is derived on every read and never stored.
type ClockStatus struct {
	HasClockedInToday  bool   `json:"hasClockedInToday"`
	HasClockedOutToday bool   `json:"hasClockedOutToday"`
	DisplayStatus      string `json:"displayStatus"`
}

// DayFile is the structure stored in each per-user daily flag file.
type DayFile struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	ClockIn   bool      `json:"clock_in,omitempty"`
	ClockOut  bool      `json:"clock_out,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Flags converts the stored file into LocalFlags.
func (f DayFile) Flags() LocalFlags {
	return LocalFlags{ClockedIn: f.ClockIn, ClockedOut: f.ClockOut}
}

// MonthSummary aggregates a month of attendance records.
type MonthSummary struct {
	Month         string         `json:"month"`
	Days          int            `json:"days"`
	ByStatus      map[string]int `json:"by_status"`
	Open          int            `json:"open"`
	WorkedSeconds int64          `json:"worked_seconds"`
}
