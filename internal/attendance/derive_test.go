package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
)

func challenge(action model.Action, status model.ChallengeStatus) *model.Challenge {
	return &model.Challenge{ID: "c-1", Action: action, UserID: testUser, Date: "2026-10-15", Status: status}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name    string
		server  *model.AttendanceDay
		local   model.LocalFlags
		pending *model.Challenge
		want    model.ClockStatus
	}{
		{
			name: "fresh day",
			want: model.ClockStatus{DisplayStatus: model.NotMarked},
		},
		{
			name:   "server clock-in overrides stale local flag",
			server: dayRecord(at(8, 0), nil, ""),
			local:  model.LocalFlags{},
			want:   model.ClockStatus{HasClockedInToday: true, DisplayStatus: "ON_TIME"},
		},
		{
			name:    "succeeded clock-in before fetch lands",
			pending: challenge(model.ActionClockIn, model.ChallengeSucceeded),
			want:    model.ClockStatus{HasClockedInToday: true, DisplayStatus: "ON_TIME"},
		},
		{
			name:    "succeeded clock-out implies clock-in",
			pending: challenge(model.ActionClockOut, model.ChallengeSucceeded),
			want:    model.ClockStatus{HasClockedInToday: true, HasClockedOutToday: true, DisplayStatus: "PRESENT"},
		},
		{
			name:    "awaiting challenge reports nothing",
			pending: challenge(model.ActionClockIn, model.ChallengeAwaitingEntry),
			want:    model.ClockStatus{DisplayStatus: model.NotMarked},
		},
		{
			name:  "local flags without server record",
			local: model.LocalFlags{ClockedIn: true},
			want:  model.ClockStatus{HasClockedInToday: true, DisplayStatus: "ON_TIME"},
		},
		{
			name:   "empty server record overrides local flags",
			server: dayRecord(nil, nil, ""),
			local:  model.LocalFlags{ClockedIn: true, ClockedOut: true},
			want:   model.ClockStatus{DisplayStatus: model.NotMarked},
		},
		{
			name:    "succeeded challenge beats empty server record",
			server:  dayRecord(nil, nil, ""),
			pending: challenge(model.ActionClockIn, model.ChallengeSucceeded),
			want:    model.ClockStatus{HasClockedInToday: true, DisplayStatus: "ON_TIME"},
		},
		{
			name:   "both server times",
			server: dayRecord(at(8, 0), at(17, 0), ""),
			local:  model.LocalFlags{},
			want:   model.ClockStatus{HasClockedInToday: true, HasClockedOutToday: true, DisplayStatus: "PRESENT"},
		},
		{
			name:   "explicit server status wins",
			server: dayRecord(at(9, 30), nil, model.StatusLate),
			want:   model.ClockStatus{HasClockedInToday: true, DisplayStatus: "LATE"},
		},
		{
			name:   "local clock-out falls back to local flags",
			server: dayRecord(at(8, 0), nil, ""),
			local:  model.LocalFlags{ClockedIn: true, ClockedOut: true},
			want:   model.ClockStatus{HasClockedInToday: true, HasClockedOutToday: true, DisplayStatus: "PRESENT"},
		},
		{
			name:   "clock-out only record still implies clock-in",
			server: dayRecord(nil, at(17, 0), ""),
			want:   model.ClockStatus{HasClockedInToday: true, HasClockedOutToday: true, DisplayStatus: "PRESENT"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := attendance.DeriveStatus(tt.server, tt.local, tt.pending)
			assert.Equal(t, tt.want, got)
		})
	}
}

func allInputs() (servers []*model.AttendanceDay, locals []model.LocalFlags, pendings []*model.Challenge) {
	servers = []*model.AttendanceDay{
		nil,
		dayRecord(nil, nil, ""),
		dayRecord(at(8, 0), nil, ""),
		dayRecord(at(8, 0), at(17, 0), ""),
		dayRecord(at(9, 30), nil, model.StatusLate),
		dayRecord(nil, at(17, 0), ""),
	}
	locals = []model.LocalFlags{{}, {ClockedIn: true}, {ClockedOut: true}, {ClockedIn: true, ClockedOut: true}}
	pendings = []*model.Challenge{nil}
	for _, a := range []model.Action{model.ActionClockIn, model.ActionClockOut} {
		for _, s := range []model.ChallengeStatus{
			model.ChallengeIdle, model.ChallengeAwaitingEntry, model.ChallengeSubmitting,
			model.ChallengeSucceeded, model.ChallengeFailed,
		} {
			pendings = append(pendings, challenge(a, s))
		}
	}
	return servers, locals, pendings
}

func TestDeriveStatusProperties(t *testing.T) {
	servers, locals, pendings := allInputs()
	for _, srv := range servers {
		for _, local := range locals {
			for _, p := range pendings {
				got := attendance.DeriveStatus(srv, local, p)
				if got.HasClockedOutToday {
					assert.True(t, got.HasClockedInToday, "out without in: server=%+v local=%+v pending=%+v", srv, local, p)
				}
				assert.Equal(t, got, attendance.DeriveStatus(srv, local, p), "derivation not deterministic")
				if srv.HasClockIn() {
					assert.True(t, got.HasClockedInToday, "server clock-in ignored")
				}
				if p.Succeeded() {
					assert.True(t, got.HasClockedInToday, "succeeded challenge ignored")
				}
			}
		}
	}
}

func TestDeriveStatusDoesNotMutateInputs(t *testing.T) {
	srv := dayRecord(at(8, 0), nil, "")
	p := challenge(model.ActionClockOut, model.ChallengeSucceeded)
	before, pBefore := *srv.Clone(), *p

	attendance.DeriveStatus(srv, model.LocalFlags{ClockedOut: true}, p)

	assert.Equal(t, before, *srv)
	assert.Equal(t, pBefore, *p)
}

func TestGuards(t *testing.T) {
	statuses := []model.ClockStatus{
		{},
		{HasClockedInToday: true},
		{HasClockedInToday: true, HasClockedOutToday: true},
	}
	_, _, pendings := allInputs()
	for _, st := range statuses {
		for _, p := range pendings {
			in := attendance.CanClockIn(st, p)
			out := attendance.CanClockOut(st, p)
			if st.HasClockedInToday || st.HasClockedOutToday || p.Active() {
				assert.False(t, in, "CanClockIn(%+v, %+v)", st, p)
			} else {
				assert.True(t, in, "CanClockIn(%+v, %+v)", st, p)
			}
			if !st.HasClockedInToday || st.HasClockedOutToday || p.Active() {
				assert.False(t, out, "CanClockOut(%+v, %+v)", st, p)
			} else {
				assert.True(t, out, "CanClockOut(%+v, %+v)", st, p)
			}
		}
	}
}

func TestFreshDayGuards(t *testing.T) {
	st := attendance.DeriveStatus(nil, model.LocalFlags{}, nil)
	assert.Equal(t, model.ClockStatus{DisplayStatus: "Not Marked"}, st)
	assert.True(t, attendance.CanClockIn(st, nil))
	assert.False(t, attendance.CanClockOut(st, nil))
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		status model.ClockStatus
		active *model.Challenge
		want   model.State
	}{
		{model.ClockStatus{}, nil, model.StateNotClockedIn},
		{model.ClockStatus{}, challenge(model.ActionClockIn, model.ChallengeAwaitingEntry), model.StateAwaitingClockInOtp},
		{model.ClockStatus{HasClockedInToday: true}, nil, model.StateClockedIn},
		{model.ClockStatus{HasClockedInToday: true}, challenge(model.ActionClockOut, model.ChallengeFailed), model.StateAwaitingClockOutOtp},
		{model.ClockStatus{HasClockedInToday: true, HasClockedOutToday: true}, nil, model.StateClockedOut},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.StateOf(tt.status, tt.active))
	}
}
