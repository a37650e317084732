package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/storage"
)

const testUser = "emp-1"

var day1 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubGateway is a scriptable gateway. Fetches snapshot the record when they
// start, so a held fetch returns what the server had at that time.
type stubGateway struct {
	mu sync.Mutex

	record   *model.AttendanceDay
	fetchErr error
	// holdFetch blocks fetches after they read the record.
	holdFetch    chan struct{}
	fetchStarted chan struct{}

	requestErr error

	verifyRec     *model.AttendanceDay
	verifyErr     error
	holdVerify    chan struct{}
	verifyStarted chan struct{}

	month []model.AttendanceDay

	calls map[string]int
}

func newStub() *stubGateway {
	return &stubGateway{calls: make(map[string]int)}
}

func (s *stubGateway) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubGateway) setRecord(rec *model.AttendanceDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
}

func (s *stubGateway) FetchTodayRecord(ctx context.Context, userID string) (*model.AttendanceDay, error) {
	s.mu.Lock()
	s.calls["fetch"]++
	rec, err := s.record.Clone(), s.fetchErr
	hold, started := s.holdFetch, s.fetchStarted
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rec, err
}

func (s *stubGateway) FetchMonthRecords(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["month"]++
	return append([]model.AttendanceDay(nil), s.month...), nil
}

func (s *stubGateway) request(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	return s.requestErr
}

func (s *stubGateway) RequestClockIn(ctx context.Context, userID string) error {
	return s.request("requestIn")
}

func (s *stubGateway) RequestClockOut(ctx context.Context, userID string) error {
	return s.request("requestOut")
}

func (s *stubGateway) verify(ctx context.Context) (*model.AttendanceDay, error) {
	s.mu.Lock()
	s.calls["verify"]++
	hold, started := s.holdVerify, s.verifyStarted
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	s.record = s.verifyRec.Clone()
	return s.verifyRec.Clone(), nil
}

func (s *stubGateway) VerifyClockIn(ctx context.Context, userID, otp string) (*model.AttendanceDay, error) {
	return s.verify(ctx)
}

func (s *stubGateway) VerifyClockOut(ctx context.Context, userID, otp string) (*model.AttendanceDay, error) {
	return s.verify(ctx)
}

func (s *stubGateway) FetchPendingOtps(ctx context.Context) ([]model.OtpChallenge, error) {
	return nil, nil
}

type harness struct {
	gw    *stubGateway
	cache *storage.Cache
	clock *clock
	rec   *attendance.Reconciler
	flow  *attendance.Flow
}

func newHarness(t *testing.T, gw *stubGateway) *harness {
	t.Helper()
	h := &harness{
		gw:    gw,
		cache: storage.NewCache(t.TempDir()),
		clock: &clock{now: day1},
	}
	h.rec = h.newReconciler()
	h.flow = attendance.NewFlow(h.rec, time.Second, zap.NewNop())
	return h
}

// newReconciler builds a reconciler over the same cache, as a restarted
// process would.
func (h *harness) newReconciler(opts ...attendance.Option) *attendance.Reconciler {
	base := []attendance.Option{
		attendance.WithClock(h.clock.Now),
		attendance.WithLocation(time.UTC),
		attendance.WithResyncLimit(time.Millisecond, 100),
	}
	return attendance.NewReconciler(testUser, h.gw, h.cache, zap.NewNop(), append(base, opts...)...)
}

func (h *harness) flags(t *testing.T, day time.Time) model.LocalFlags {
	t.Helper()
	flags, err := h.cache.Flags(testUser, day)
	if err != nil {
		t.Fatalf("reading flags: %v", err)
	}
	return flags
}

func at(hour, minute int) *time.Time {
	t := time.Date(2026, 10, 15, hour, minute, 0, 0, time.UTC)
	return &t
}

func dayRecord(in, out *time.Time, status model.Status) *model.AttendanceDay {
	return &model.AttendanceDay{
		UserID:       testUser,
		Date:         "2026-10-15",
		ClockInTime:  in,
		ClockOutTime: out,
		Status:       status,
	}
}
