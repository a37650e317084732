package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/validate"
)

// DefaultSubmitTimeout bounds a single OTP verification.
const DefaultSubmitTimeout = 30 * time.Second

// View is everything a presentation layer needs to render today.
type View struct {
	Status      model.ClockStatus `json:"status"`
	State       model.State       `json:"state"`
	CanClockIn  bool              `json:"canClockIn"`
	CanClockOut bool              `json:"canClockOut"`
	Challenge   *model.Challenge  `json:"challenge,omitempty"`
}

// Flow drives one OTP challenge at a time on top of a Reconciler. No lock is
// held while the gateway is called.
type Flow struct {
	rec           *Reconciler
	log           *zap.Logger
	submitTimeout time.Duration

	mu      sync.Mutex
	current *model.Challenge
	// settled is the last succeeded challenge. It keeps the transition
	// reported as done until a fetch that started after it has landed.
	settled *model.Challenge
}

// NewFlow returns a flow over rec. A zero submitTimeout selects
// DefaultSubmitTimeout.
func NewFlow(rec *Reconciler, submitTimeout time.Duration, logger *zap.Logger) *Flow {
	if submitTimeout <= 0 {
		submitTimeout = DefaultSubmitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{rec: rec, log: logger, submitTimeout: submitTimeout}
}

// Reconciler returns the reconciler the flow drives.
func (f *Flow) Reconciler() *Reconciler { return f.rec }

// expireLocked discards a challenge that was started on an earlier day.
func (f *Flow) expireLocked(today string) {
	if f.current != nil && f.current.Date != today {
		f.log.Info("discarding challenge from previous day", zap.String("challenge", f.current.ID), zap.String("date", f.current.Date))
		f.current = nil
	}
	if f.settled != nil && f.settled.Date != today {
		f.settled = nil
	}
}

// View derives the current status, state and guards.
func (f *Flow) View() View {
	today := f.rec.Today()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(today)
	return f.viewLocked()
}

func (f *Flow) viewLocked() View {
	status := f.rec.Snapshot(f.settled)
	return View{
		Status:      status,
		State:       model.StateOf(status, f.current),
		CanClockIn:  CanClockIn(status, f.current),
		CanClockOut: CanClockOut(status, f.current),
		Challenge:   f.current.Copy(),
	}
}

// Current returns a copy of the active challenge, or nil.
func (f *Flow) Current() *model.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Copy()
}

// Begin starts a challenge for action: the local guard is checked and the
// server is asked to issue an OTP. On a server-state conflict the challenge is
// dropped and today's record is resynchronised.
func (f *Flow) Begin(ctx context.Context, action model.Action) (*model.Challenge, error) {
	today := f.rec.Today()
	f.mu.Lock()
	f.expireLocked(today)
	if f.current.Active() {
		label := f.current.Action.Label()
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s in progress", ErrChallengeAlreadyActive, label)
	}
	status := f.rec.Snapshot(f.settled)
	ch, err := f.rec.RequestTransition(action, status, f.current)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.current = ch
	f.mu.Unlock()

	log := f.log.With(zap.String("challenge", ch.ID), zap.String("action", string(action)))
	log.Debug("requesting otp")

	userID := f.rec.UserID()
	gw := f.rec.Gateway()
	if action == model.ActionClockIn {
		err = gw.RequestClockIn(ctx, userID)
	} else {
		err = gw.RequestClockOut(ctx, userID)
	}

	f.mu.Lock()
	if f.current == nil || f.current.ID != ch.ID {
		f.mu.Unlock()
		log.Debug("otp request answered after challenge was dropped")
		return nil, ErrStaleResponse
	}
	if err != nil {
		f.current = nil
		f.mu.Unlock()
		cerr := &ChallengeError{Action: action, Reason: reasonFor(action, err), Err: err}
		if IsConflict(err) {
			log.Info("server refused transition", zap.Error(err))
			if rerr := f.rec.Resync(ctx, string(cerr.Reason)); rerr != nil {
				log.Warn("resync after conflict", zap.Error(rerr))
			}
		} else {
			log.Warn("otp request failed", zap.Error(err))
		}
		return nil, cerr
	}
	f.current.Status = model.ChallengeAwaitingEntry
	out := f.current.Copy()
	f.mu.Unlock()
	log.Info("otp requested")
	return out, nil
}

// Submit verifies otp against the active challenge. On success the verified
// record is returned and applied. On failure a *ChallengeError carries the
// reason; the challenge stays open for retry unless the reason is terminal.
func (f *Flow) Submit(ctx context.Context, otp string) (*model.AttendanceDay, error) {
	otp = strings.TrimSpace(otp)
	today := f.rec.Today()

	f.mu.Lock()
	f.expireLocked(today)
	ch := f.current
	switch {
	case ch == nil:
		f.mu.Unlock()
		return nil, ErrNoActiveChallenge
	case ch.Status == model.ChallengeSubmitting:
		f.mu.Unlock()
		return nil, ErrSubmitInProgress
	case !ch.Retryable():
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: otp not issued yet", ErrNoActiveChallenge)
	}
	if otp == "" {
		f.mu.Unlock()
		return nil, ErrEmptyOtp
	}
	if err := validate.OTP(otp); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrMalformedOtp, err)
	}
	ch.OtpValue = otp
	ch.Status = model.ChallengeSubmitting
	ch.Reason = model.ReasonNone
	ch.Attempts++
	id, action, date := ch.ID, ch.Action, ch.Date
	f.mu.Unlock()

	log := f.log.With(zap.String("challenge", id), zap.String("action", string(action)))

	sctx, cancel := context.WithTimeout(ctx, f.submitTimeout)
	defer cancel()
	userID := f.rec.UserID()
	gw := f.rec.Gateway()
	var rec *model.AttendanceDay
	var err error
	if action == model.ActionClockIn {
		rec, err = gw.VerifyClockIn(sctx, userID, otp)
	} else {
		rec, err = gw.VerifyClockOut(sctx, userID, otp)
	}
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %w", ErrSubmitTimeout, f.submitTimeout, err)
	}

	f.mu.Lock()
	if f.current == nil || f.current.ID != id || f.current.Action != action {
		f.mu.Unlock()
		log.Info("ignoring verification response for dropped challenge", zap.Bool("verified", err == nil))
		f.rec.InvalidateToday()
		return nil, ErrStaleResponse
	}

	if err == nil {
		f.current.Status = model.ChallengeSucceeded
		if f.rec.markSucceeded(action, date, rec) {
			f.settled = f.current
		}
		f.current = nil
		f.mu.Unlock()
		return rec.Clone(), nil
	}

	reason := reasonFor(action, err)
	f.current.Status = model.ChallengeFailed
	f.current.Reason = reason
	resync := IsConflict(err)
	if reason.Terminal() {
		f.current = nil
	}
	f.mu.Unlock()

	log.Info("otp verification failed", zap.String("reason", string(reason)), zap.Error(err))
	if resync {
		if rerr := f.rec.Resync(ctx, string(reason)); rerr != nil {
			log.Warn("resync after conflict", zap.Error(rerr))
		}
	}
	return nil, &ChallengeError{Action: action, Reason: reason, Err: err}
}

// Cancel discards the active challenge without contacting the server. It
// reports whether there was one.
func (f *Flow) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return false
	}
	f.log.Info("challenge cancelled", zap.String("challenge", f.current.ID), zap.String("action", string(f.current.Action)))
	f.current = nil
	return true
}

// Stale reports whether today's record should be refetched before the next
// regular poll.
func (f *Flow) Stale() bool { return f.rec.Stale() }

// Refresh refetches today's record. The settled challenge is dropped once a
// fetch that started after it landed unmerged.
func (f *Flow) Refresh(ctx context.Context) error {
	f.mu.Lock()
	settled := f.settled
	f.mu.Unlock()

	fresh, err := f.rec.Refresh(ctx)
	if err != nil {
		return err
	}

	today := f.rec.Today()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(today)
	if fresh && settled != nil && f.settled == settled {
		f.settled = nil
	}
	return nil
}
