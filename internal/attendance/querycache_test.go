package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
)

const today = "2026-10-15"

func TestQueryCacheFreshFetchReplaces(t *testing.T) {
	q := attendance.NewQueryCache()

	_, loaded := q.Today(testUser, today)
	assert.False(t, loaded)
	assert.True(t, q.Stale(testUser, today))

	v := q.BeginToday(testUser, today)
	stored, fresh := q.StoreToday(testUser, today, dayRecord(at(8, 0), nil, ""), v)
	assert.True(t, fresh)
	assert.True(t, stored.HasClockIn())

	v = q.BeginToday(testUser, today)
	stored, fresh = q.StoreToday(testUser, today, nil, v)
	assert.True(t, fresh)
	assert.Nil(t, stored)

	rec, loaded := q.Today(testUser, today)
	assert.True(t, loaded)
	assert.Nil(t, rec)
	assert.False(t, q.Stale(testUser, today))
}

func TestQueryCacheLateFetchMergesUnderVerifiedRecord(t *testing.T) {
	q := attendance.NewQueryCache()

	v := q.BeginToday(testUser, today)
	q.ApplyToday(testUser, today, dayRecord(at(8, 0), nil, ""))

	stored, fresh := q.StoreToday(testUser, today, nil, v)
	assert.False(t, fresh)
	require.NotNil(t, stored)
	assert.True(t, stored.HasClockIn(), "late nil fetch erased verified clock-in")

	// A late fetch that knows more still fills gaps.
	v2 := v
	q.ApplyToday(testUser, today, dayRecord(nil, at(17, 0), ""))
	stored, fresh = q.StoreToday(testUser, today, dayRecord(at(7, 55), nil, model.StatusOnTime), v2)
	assert.False(t, fresh)
	assert.True(t, stored.HasClockIn())
	assert.True(t, stored.HasClockOut())
	assert.Equal(t, model.StatusOnTime, stored.Status)
	assert.Equal(t, *at(8, 0), *stored.ClockInTime, "newer clock-in must win")
}

func TestQueryCacheInvalidateMakesInFlightFetchStale(t *testing.T) {
	q := attendance.NewQueryCache()

	v := q.BeginToday(testUser, today)
	q.InvalidateToday(testUser, today)
	assert.True(t, q.Stale(testUser, today))

	_, fresh := q.StoreToday(testUser, today, nil, v)
	assert.False(t, fresh)

	v = q.BeginToday(testUser, today)
	_, fresh = q.StoreToday(testUser, today, dayRecord(at(8, 0), nil, ""), v)
	assert.True(t, fresh)
}

func TestQueryCacheReturnsCopies(t *testing.T) {
	q := attendance.NewQueryCache()
	q.ApplyToday(testUser, today, dayRecord(at(8, 0), nil, ""))

	rec, _ := q.Today(testUser, today)
	*rec.ClockInTime = rec.ClockInTime.Add(time.Hour)

	again, _ := q.Today(testUser, today)
	assert.Equal(t, *at(8, 0), *again.ClockInTime)
}

func TestQueryCacheDropAndMonth(t *testing.T) {
	q := attendance.NewQueryCache()
	q.ApplyToday(testUser, today, dayRecord(at(8, 0), nil, ""))
	q.DropToday(testUser, today)
	_, loaded := q.Today(testUser, today)
	assert.False(t, loaded)

	_, ok := q.Month(testUser, "2026-10")
	assert.False(t, ok)
	q.StoreMonth(testUser, "2026-10", []model.AttendanceDay{*dayRecord(at(8, 0), at(17, 0), "")})
	recs, ok := q.Month(testUser, "2026-10")
	assert.True(t, ok)
	assert.Len(t, recs, 1)

	_, ok = q.Month("emp-2", "2026-10")
	assert.False(t, ok, "month entries are per user")

	q.InvalidateMonth(testUser, "2026-10")
	_, ok = q.Month(testUser, "2026-10")
	assert.False(t, ok)
}
