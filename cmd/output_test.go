package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
)

func clockedInStatus() StatusResult {
	in := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	return StatusResult{
		UserID: testUser,
		Date:   "2026-10-15",
		View: attendance.View{
			Status:      model.ClockStatus{HasClockedInToday: true, DisplayStatus: "ON_TIME"},
			State:       model.StateClockedIn,
			CanClockOut: true,
		},
		Record: &model.AttendanceDay{UserID: testUser, Date: "2026-10-15", ClockInTime: &in, Status: model.StatusOnTime},
	}
}

func TestOutputStatusTable(t *testing.T) {
	useUTC(t)
	var b bytes.Buffer
	require.NoError(t, outputResult(&b, clockedInStatus(), "table"))

	got := b.String()
	assert.Contains(t, got, "STATUS     ON_TIME")
	assert.Contains(t, got, "STATE      CLOCKED_IN")
	assert.Contains(t, got, "CLOCK-IN   08:30")
	assert.Contains(t, got, "CLOCK-OUT  -")
	assert.Contains(t, got, "NEXT       punch out")
	assert.NotContains(t, got, "WORKED")
}

func TestOutputStatusTableStaleWithChallenge(t *testing.T) {
	r := StatusResult{
		UserID: testUser,
		Date:   "2026-10-15",
		Stale:  true,
		View: attendance.View{
			Status:    model.ClockStatus{DisplayStatus: model.NotMarked},
			State:     model.StateAwaitingClockInOtp,
			Challenge: &model.Challenge{Action: model.ActionClockIn, Status: model.ChallengeFailed, Attempts: 2},
		},
	}
	var b bytes.Buffer
	require.NoError(t, outputResult(&b, r, ""))

	got := b.String()
	assert.Contains(t, got, "Not Marked (offline, may be outdated)")
	assert.Contains(t, got, "clock-in (failed, 2 attempts)")
	assert.Contains(t, got, "punch in --otp <code>")
}

func TestOutputStatusJSON(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, outputResult(&b, clockedInStatus(), "json"))

	var got StatusResult
	require.NoError(t, json.Unmarshal(b.Bytes(), &got))
	assert.Equal(t, model.StateClockedIn, got.View.State)
	assert.True(t, got.View.Status.HasClockedInToday)
	assert.True(t, got.Record.HasClockIn())
}

func TestOutputStatusYAML(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, outputResult(&b, clockedInStatus(), "yaml"))

	got := b.String()
	assert.Contains(t, got, "displayStatus: ON_TIME")
	assert.Contains(t, got, "state: CLOCKED_IN")
	assert.Contains(t, got, "userId: emp-1")
}

func TestOutputOtpsTable(t *testing.T) {
	useUTC(t)
	var b bytes.Buffer
	require.NoError(t, outputResult(&b, OtpsResult{}, "table"))
	assert.Equal(t, "No pending codes.\n", b.String())

	b.Reset()
	r := OtpsResult{Pending: []model.OtpChallenge{{
		UserID: testUser, UserName: "Erika", Action: model.ActionClockOut, Code: "123456",
		ExpiresAt: time.Date(2026, 10, 15, 17, 5, 0, 0, time.UTC),
	}}}
	require.NoError(t, outputResult(&b, r, "table"))
	assert.Contains(t, b.String(), "emp-1  Erika  clock-out  123456  17:05:00")
}

func TestOutputUnknownFormat(t *testing.T) {
	err := outputResult(&bytes.Buffer{}, OtpsResult{}, "xml")
	assert.Error(t, err)
}
