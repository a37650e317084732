package attendance

import (
	"sync"

	"github.com/Tiliavir/punch/internal/model"
)

// QueryCache holds the last fetched server data per user: today's record and
// month listings. Every write to a today entry bumps its version, so a fetch
// that started before a newer write can be detected and merged instead of
// replacing the newer data.
type QueryCache struct {
	mu     sync.Mutex
	today  map[string]*todayEntry
	months map[string][]model.AttendanceDay
}

type todayEntry struct {
	rec     *model.AttendanceDay
	loaded  bool
	stale   bool
	version uint64
}

// NewQueryCache returns an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{
		today:  make(map[string]*todayEntry),
		months: make(map[string][]model.AttendanceDay),
	}
}

func cacheKey(userID, key string) string {
	return userID + "|" + key
}

func (q *QueryCache) entry(userID, date string) *todayEntry {
	k := cacheKey(userID, date)
	e, ok := q.today[k]
	if !ok {
		e = &todayEntry{}
		q.today[k] = e
	}
	return e
}

// Today returns the cached record for date. loaded is false until a fetch or
// a verified write landed; a loaded nil record means "no record yet".
func (q *QueryCache) Today(userID, date string) (rec *model.AttendanceDay, loaded bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.today[cacheKey(userID, date)]
	if !ok {
		return nil, false
	}
	return e.rec.Clone(), e.loaded
}

// Stale reports whether the today entry needs a refetch.
func (q *QueryCache) Stale(userID, date string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.today[cacheKey(userID, date)]
	return !ok || !e.loaded || e.stale
}

// BeginToday records the start of a fetch and returns the version to hand
// back to StoreToday.
func (q *QueryCache) BeginToday(userID, date string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entry(userID, date).version
}

// StoreToday lands a fetch result. If nothing was written since begun, rec
// replaces the entry and fresh is true. Otherwise rec is merged under the
// newer data, which keeps every field it already has. The resulting record is
// returned either way.
func (q *QueryCache) StoreToday(userID, date string, rec *model.AttendanceDay, begun uint64) (stored *model.AttendanceDay, fresh bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entry(userID, date)
	if e.version == begun {
		e.rec = rec.Clone()
		e.loaded = true
		e.stale = false
		return e.rec.Clone(), true
	}
	e.rec = merge(e.rec, rec)
	e.loaded = true
	return e.rec.Clone(), false
}

// ApplyToday merges a verified record over the entry and bumps its version.
func (q *QueryCache) ApplyToday(userID, date string, rec *model.AttendanceDay) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entry(userID, date)
	e.rec = merge(rec, e.rec)
	e.loaded = true
	e.version++
}

// InvalidateToday marks the entry stale and bumps its version so in-flight
// fetches cannot replace whatever lands next.
func (q *QueryCache) InvalidateToday(userID, date string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entry(userID, date)
	e.stale = true
	e.version++
}

// DropToday forgets the entry of a past day.
func (q *QueryCache) DropToday(userID, date string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.today, cacheKey(userID, date))
}

// Month returns the cached records of a month ("2006-01").
func (q *QueryCache) Month(userID, month string) ([]model.AttendanceDay, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	recs, ok := q.months[cacheKey(userID, month)]
	if !ok {
		return nil, false
	}
	return append([]model.AttendanceDay(nil), recs...), true
}

func (q *QueryCache) StoreMonth(userID, month string, recs []model.AttendanceDay) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.months[cacheKey(userID, month)] = append([]model.AttendanceDay(nil), recs...)
}

func (q *QueryCache) InvalidateMonth(userID, month string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.months, cacheKey(userID, month))
}

// merge overlays older onto newer: every field newer carries wins, gaps are
// filled from older. Either side may be nil.
func merge(newer, older *model.AttendanceDay) *model.AttendanceDay {
	if newer == nil {
		return older.Clone()
	}
	out := newer.Clone()
	if older == nil {
		return out
	}
	if !out.HasClockIn() && older.HasClockIn() {
		t := *older.ClockInTime
		out.ClockInTime = &t
	}
	if !out.HasClockOut() && older.HasClockOut() {
		t := *older.ClockOutTime
		out.ClockOutTime = &t
	}
	if out.Status == "" {
		out.Status = older.Status
	}
	if out.UserID == "" {
		out.UserID = older.UserID
	}
	if out.Date == "" {
		out.Date = older.Date
	}
	return out
}
