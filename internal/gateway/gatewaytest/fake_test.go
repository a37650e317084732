package gatewaytest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/gateway/gatewaytest"
	"github.com/Tiliavir/punch/internal/model"
)

const user = "emp-1"

func newFake(t *testing.T, start time.Time) (*gatewaytest.Fake, func(time.Duration)) {
	t.Helper()
	now := start
	f := gatewaytest.NewFake(time.UTC)
	f.Now = func() time.Time { return now }
	f.AddUser(user, "Erika", "secret", false)
	return f, func(d time.Duration) { now = now.Add(d) }
}

func clock(t *testing.T, f *gatewaytest.Fake, action model.Action) *model.AttendanceDay {
	t.Helper()
	ctx := context.Background()
	var err error
	if action == model.ActionClockIn {
		err = f.RequestClockIn(ctx, user)
	} else {
		err = f.RequestClockOut(ctx, user)
	}
	require.NoError(t, err)
	code, ok := f.Code(user, action)
	require.True(t, ok)

	var rec *model.AttendanceDay
	if action == model.ActionClockIn {
		rec, err = f.VerifyClockIn(ctx, user, code)
	} else {
		rec, err = f.VerifyClockOut(ctx, user, code)
	}
	require.NoError(t, err)
	return rec
}

func TestClockInStatus(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want model.Status
	}{
		{"early", time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC), model.StatusOnTime},
		{"on the dot", time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), model.StatusOnTime},
		{"late", time.Date(2026, 10, 15, 9, 1, 0, 0, time.UTC), model.StatusLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFake(t, tt.at)
			rec := clock(t, f, model.ActionClockIn)
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, "2026-10-15", rec.Date)
		})
	}
}

func TestShortDayIsHalfDay(t *testing.T) {
	f, advance := newFake(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	clock(t, f, model.ActionClockIn)
	advance(3 * time.Hour)
	rec := clock(t, f, model.ActionClockOut)
	assert.Equal(t, model.StatusHalfDay, rec.Status)

	f2, advance2 := newFake(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	clock(t, f2, model.ActionClockIn)
	advance2(8 * time.Hour)
	rec = clock(t, f2, model.ActionClockOut)
	assert.Equal(t, model.StatusOnTime, rec.Status)
	worked, ok := rec.Worked()
	require.True(t, ok)
	assert.Equal(t, 8*time.Hour, worked)
}

func TestServerConflicts(t *testing.T) {
	ctx := context.Background()
	f, advance := newFake(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))

	assert.ErrorIs(t, f.RequestClockOut(ctx, user), attendance.ErrNoActiveClockIn)
	clock(t, f, model.ActionClockIn)
	assert.ErrorIs(t, f.RequestClockIn(ctx, user), attendance.ErrAlreadyClockedIn)

	advance(8 * time.Hour)
	clock(t, f, model.ActionClockOut)
	assert.ErrorIs(t, f.RequestClockIn(ctx, user), attendance.ErrAlreadyCompletedToday)
	assert.ErrorIs(t, f.RequestClockOut(ctx, user), attendance.ErrAlreadyClockedOut)
}

func TestOtpRules(t *testing.T) {
	ctx := context.Background()
	f, advance := newFake(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))

	_, err := f.VerifyClockIn(ctx, user, "123456")
	assert.ErrorIs(t, err, attendance.ErrInvalidOrExpiredOtp, "nothing was requested")

	require.NoError(t, f.RequestClockIn(ctx, user))
	_, err = f.VerifyClockIn(ctx, user, "12345")
	assert.ErrorIs(t, err, attendance.ErrInvalidOtp)

	pending, err := f.FetchPendingOtps(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.ActionClockIn, pending[0].Action)
	assert.Equal(t, "Erika", pending[0].UserName)
	assert.Len(t, pending[0].Code, 6)

	advance(gatewaytest.OtpTTL + time.Second)
	_, err = f.VerifyClockIn(ctx, user, pending[0].Code)
	assert.ErrorIs(t, err, attendance.ErrExpiredOtp)
	assert.ErrorIs(t, err, attendance.ErrInvalidOrExpiredOtp)

	pending, err = f.FetchPendingOtps(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
