package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/timecalc"
)

// DeriveStatus combines the server record, the local flags and the pending
// challenge into one ClockStatus. Precedence, highest first:
//
//  1. a succeeded challenge reports its action as done
//  2. a time present on the server record is authoritative for its flag
//  3. otherwise the local flag is used
//
// A server record with neither time set overrides the local flags entirely.
// The result always satisfies out ⇒ in.
func DeriveStatus(server *model.AttendanceDay, local model.LocalFlags, pending *model.Challenge) model.ClockStatus {
	useLocal := !server.Empty()

	in := server.HasClockIn() || (useLocal && local.ClockedIn)
	out := server.HasClockOut() || (useLocal && local.ClockedOut)

	if pending.Succeeded() {
		switch pending.Action {
		case model.ActionClockIn:
			in = true
		case model.ActionClockOut:
			in, out = true, true
		}
	}
	in = in || out

	return model.ClockStatus{
		HasClockedInToday:  in,
		HasClockedOutToday: out,
		DisplayStatus:      displayStatus(server, in, out),
	}
}

func displayStatus(server *model.AttendanceDay, in, out bool) string {
	if server != nil && server.Status != "" {
		return string(server.Status)
	}
	switch {
	case in && out:
		return string(model.StatusPresent)
	case in:
		return string(model.StatusOnTime)
	}
	return model.NotMarked
}

// DisplayStatusOf maps a single historical record to its display status.
func DisplayStatusOf(rec model.AttendanceDay) string {
	return displayStatus(&rec, rec.HasClockIn(), rec.HasClockOut())
}

// CanClockIn reports whether a clock-in may be requested.
func CanClockIn(status model.ClockStatus, pending *model.Challenge) bool {
	return !status.HasClockedInToday && !status.HasClockedOutToday && !pending.Active()
}

// CanClockOut reports whether a clock-out may be requested.
func CanClockOut(status model.ClockStatus, pending *model.Challenge) bool {
	return status.HasClockedInToday && !status.HasClockedOutToday && !pending.Active()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLocation sets the time zone that decides where a calendar day begins.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithQueryCache shares a query cache between reconcilers. The CLI never
// shares one; tests use it to inspect and drop entries directly.
func WithQueryCache(q *QueryCache) Option {
	return func(r *Reconciler) { r.queries = q }
}

// WithResyncLimit bounds how often conflicts may trigger a refetch.
func WithResyncLimit(every time.Duration, burst int) Option {
	return func(r *Reconciler) { r.resync = rate.NewLimiter(rate.Every(every), burst) }
}

// Reconciler owns the derived clock status of one user. It is the only
// writer of the local cache and the query cache, together with Flow.
type Reconciler struct {
	userID  string
	gw      Gateway
	local   LocalCache
	queries *QueryCache
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
	resync  *rate.Limiter

	mu  sync.Mutex
	day string
}

// NewReconciler returns a reconciler for userID.
func NewReconciler(userID string, gw Gateway, local LocalCache, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		userID:  userID,
		gw:      gw,
		local:   local,
		queries: NewQueryCache(),
		loc:     time.Local,
		now:     time.Now,
		log:     logger,
		resync:  rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserID returns the user the reconciler works for.
func (r *Reconciler) UserID() string { return r.userID }

// Gateway returns the gateway the reconciler fetches from.
func (r *Reconciler) Gateway() Gateway { return r.gw }

// Now returns the current time in the reconciler's location.
func (r *Reconciler) Now() time.Time { return r.now().In(r.loc) }

// Today returns the current calendar day key.
func (r *Reconciler) Today() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, key := r.rolloverLocked()
	return key
}

// rolloverLocked returns today and, when the calendar day changed since the
// last call, clears the previous day's flags and query entry.
func (r *Reconciler) rolloverLocked() (time.Time, string) {
	today := r.Now()
	key := timecalc.DayKey(today)
	if r.day != "" && r.day != key {
		prev, err := timecalc.ParseDay(r.day, r.loc)
		if err == nil {
			if err := r.local.ClearDay(r.userID, prev); err != nil {
				r.log.Warn("clearing previous day flags", zap.String("date", r.day), zap.Error(err))
			}
		}
		r.queries.DropToday(r.userID, r.day)
		r.log.Info("calendar day rolled over", zap.String("from", r.day), zap.String("to", key))
	}
	r.day = key
	return today, key
}

// flagsReader is implemented by local caches that load both flags of a day
// in one read.
type flagsReader interface {
	Flags(userID string, day time.Time) (model.LocalFlags, error)
}

func (r *Reconciler) flagsLocked(day time.Time) model.LocalFlags {
	if fr, ok := r.local.(flagsReader); ok {
		flags, err := fr.Flags(r.userID, day)
		if err != nil {
			r.log.Warn("reading local flags", zap.Error(err))
		}
		return flags
	}
	var flags model.LocalFlags
	var err error
	if flags.ClockedIn, err = r.local.Get(r.userID, day, model.ActionClockIn); err != nil {
		r.log.Warn("reading clock-in flag", zap.Error(err))
	}
	if flags.ClockedOut, err = r.local.Get(r.userID, day, model.ActionClockOut); err != nil {
		r.log.Warn("reading clock-out flag", zap.Error(err))
	}
	return flags
}

// Snapshot derives today's status from what is currently known. pending is
// the settled challenge, if any.
func (r *Reconciler) Snapshot(pending *model.Challenge) model.ClockStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	today, key := r.rolloverLocked()
	rec, _ := r.queries.Today(r.userID, key)
	return DeriveStatus(rec, r.flagsLocked(today), pending)
}

// Record returns today's server record as last fetched, or nil.
func (r *Reconciler) Record() *model.AttendanceDay {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, key := r.rolloverLocked()
	rec, _ := r.queries.Today(r.userID, key)
	return rec
}

// RequestTransition checks the local guard for action and returns a new idle
// challenge for it.
func (r *Reconciler) RequestTransition(action model.Action, status model.ClockStatus, pending *model.Challenge) (*model.Challenge, error) {
	switch action {
	case model.ActionClockIn:
		if !CanClockIn(status, pending) {
			return nil, fmt.Errorf("%w: cannot clock in (clocked in: %t, clocked out: %t, challenge pending: %t)",
				ErrIllegalTransition, status.HasClockedInToday, status.HasClockedOutToday, pending.Active())
		}
	case model.ActionClockOut:
		if !CanClockOut(status, pending) {
			return nil, fmt.Errorf("%w: cannot clock out (clocked in: %t, clocked out: %t, challenge pending: %t)",
				ErrIllegalTransition, status.HasClockedInToday, status.HasClockedOutToday, pending.Active())
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrIllegalTransition, action)
	}
	now := r.Now()
	return &model.Challenge{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    r.userID,
		Date:      timecalc.DayKey(now),
		Status:    model.ChallengeIdle,
		StartedAt: now,
	}, nil
}

// Refresh fetches today's record and lands it in the query cache. fresh is
// false when a newer write landed while the fetch was in flight, in which case
// the fetch was merged under it. Local flags are corrected from the result.
func (r *Reconciler) Refresh(ctx context.Context) (fresh bool, err error) {
	r.mu.Lock()
	_, key := r.rolloverLocked()
	begun := r.queries.BeginToday(r.userID, key)
	r.mu.Unlock()

	rec, err := r.gw.FetchTodayRecord(ctx, r.userID)
	if err != nil {
		return false, fmt.Errorf("fetching today's record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	today, current := r.rolloverLocked()
	if current != key {
		// The day changed under the fetch; its result belongs to yesterday.
		return false, nil
	}
	stored, fresh := r.queries.StoreToday(r.userID, key, rec, begun)
	if !fresh {
		r.log.Debug("late fetch merged under newer record", zap.String("date", key))
	}
	r.correctFlagsLocked(today, stored)
	return fresh, nil
}

// correctFlagsLocked makes the local flags agree with authoritative data.
func (r *Reconciler) correctFlagsLocked(day time.Time, rec *model.AttendanceDay) {
	if rec == nil {
		return
	}
	if rec.Empty() {
		if err := r.local.ClearDay(r.userID, day); err != nil {
			r.log.Warn("clearing local flags", zap.Error(err))
		}
		return
	}
	if rec.HasClockIn() {
		if err := r.local.Set(r.userID, day, model.ActionClockIn, true); err != nil {
			r.log.Warn("correcting clock-in flag", zap.Error(err))
		}
	}
	if rec.HasClockOut() {
		if err := r.local.Set(r.userID, day, model.ActionClockOut, true); err != nil {
			r.log.Warn("correcting clock-out flag", zap.Error(err))
		}
	}
}

// Resync drops today's query entry and refetches it. Refetches are rate
// limited; a throttled resync only invalidates.
func (r *Reconciler) Resync(ctx context.Context, reason string) error {
	key := r.Today()
	r.queries.InvalidateToday(r.userID, key)
	if !r.resync.Allow() {
		r.log.Debug("resync throttled", zap.String("reason", reason))
		return nil
	}
	r.log.Info("resynchronising with server", zap.String("reason", reason))
	_, err := r.Refresh(ctx)
	return err
}

// Stale reports whether today's record was invalidated or never loaded.
func (r *Reconciler) Stale() bool {
	return r.queries.Stale(r.userID, r.Today())
}

// InvalidateToday marks today's query stale without refetching.
func (r *Reconciler) InvalidateToday() {
	r.queries.InvalidateToday(r.userID, r.Today())
}

// Month returns the records of the month containing month, from the query
// cache when present.
func (r *Reconciler) Month(ctx context.Context, month time.Time) ([]model.AttendanceDay, error) {
	month = month.In(r.loc)
	key := timecalc.MonthKey(month)
	if recs, ok := r.queries.Month(r.userID, key); ok {
		return recs, nil
	}
	start, end := timecalc.MonthRange(month)
	recs, err := r.gw.FetchMonthRecords(ctx, r.userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching records for %s: %w", key, err)
	}
	r.queries.StoreMonth(r.userID, key, recs)
	return recs, nil
}

// markSucceeded applies a transition verified for date: the local flags are
// set, the verified record is merged into today's query and the month listing
// is dropped. Clock-out also sets the clock-in flag. A verification for a day
// that has already ended only invalidates; it reports false.
func (r *Reconciler) markSucceeded(action model.Action, date string, rec *model.AttendanceDay) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	today, key := r.rolloverLocked()

	if date != key {
		r.queries.InvalidateToday(r.userID, key)
		if day, err := timecalc.ParseDay(date, r.loc); err == nil {
			r.queries.InvalidateMonth(r.userID, timecalc.MonthKey(day))
		}
		r.log.Info("transition verified after its day ended", zap.String("action", string(action)), zap.String("date", date), zap.String("today", key))
		return false
	}

	kinds := []model.Action{model.ActionClockIn}
	if action == model.ActionClockOut {
		kinds = append(kinds, model.ActionClockOut)
	}
	for _, kind := range kinds {
		if err := r.local.Set(r.userID, today, kind, true); err != nil {
			r.log.Warn("setting local flag", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	if rec != nil && (rec.Date == "" || rec.Date == key) {
		r.queries.ApplyToday(r.userID, key, rec)
	} else {
		r.queries.InvalidateToday(r.userID, key)
	}
	r.queries.InvalidateMonth(r.userID, timecalc.MonthKey(today))
	r.log.Info("transition verified", zap.String("action", string(action)), zap.String("date", key))
	return true
}
