// Package gatewaytest provides an in-memory attendance server for tests: Fake
// enforces the server's clock rules and NewServer exposes it over the REST
// contract spoken by gateway.Client.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/timecalc"
)

// OtpTTL is how long an issued challenge stays valid.
const OtpTTL = 5 * time.Minute

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type user struct {
	id       string
	name     string
	password string
	manager  bool
}

type pendingOtp struct {
	challenge model.OtpChallenge
	secret    string
}

// Fake is an in-memory attendance server. Its zero value is not usable; use
// NewFake.
type Fake struct {
	// Now is the server clock.
	Now func() time.Time
	// LateAfter is the time of day after which a clock-in is LATE.
	LateAfter time.Duration

	mu      sync.Mutex
	loc     *time.Location
	users   map[string]*user
	records map[string]map[string]*model.AttendanceDay
	pending map[string]*pendingOtp
}

var _ attendance.Gateway = (*Fake)(nil)

// NewFake returns an empty server keeping days in loc.
func NewFake(loc *time.Location) *Fake {
	if loc == nil {
		loc = time.UTC
	}
	return &Fake{
		Now:       time.Now,
		LateAfter: 9 * time.Hour,
		loc:       loc,
		users:     make(map[string]*user),
		records:   make(map[string]map[string]*model.AttendanceDay),
		pending:   make(map[string]*pendingOtp),
	}
}

// AddUser registers an account. Managers may list pending OTPs.
func (f *Fake) AddUser(id, name, password string, manager bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &user{id: id, name: name, password: password, manager: manager}
}

func (f *Fake) authenticate(username, password string) (*user, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok || u.password != password {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (f *Fake) isManager(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return ok && u.manager
}

func (f *Fake) now() time.Time { return f.Now().In(f.loc) }

func pendingKey(userID string, action model.Action) string {
	return userID + "|" + string(action)
}

// SetRecord stores rec as the server's record for its user and date.
func (f *Fake) SetRecord(rec model.AttendanceDay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	days, ok := f.records[rec.UserID]
	if !ok {
		days = make(map[string]*model.AttendanceDay)
		f.records[rec.UserID] = days
	}
	days[rec.Date] = rec.Clone()
}

func (f *Fake) todayLocked(userID string) *model.AttendanceDay {
	return f.records[userID][f.now().Format(model.DateLayout)]
}

// Code returns the currently valid code of the pending challenge, the way a
// manager would read it.
func (f *Fake) Code(userID string, action model.Action) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[pendingKey(userID, action)]
	if !ok {
		return "", false
	}
	code, err := totp.GenerateCodeCustom(p.secret, f.now(), validateOpts)
	if err != nil {
		return "", false
	}
	return code, true
}

func (f *Fake) FetchTodayRecord(ctx context.Context, userID string) (*model.AttendanceDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.todayLocked(userID).Clone(), nil
}

func (f *Fake) FetchMonthRecords(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, to := start.Format(model.DateLayout), end.Format(model.DateLayout)
	out := []model.AttendanceDay{}
	for date, rec := range f.records[userID] {
		if date >= from && date <= to {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (f *Fake) issueLocked(userID string, action model.Action) error {
	u := f.users[userID]
	name := userID
	if u != nil {
		name = u.name
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "punch", AccountName: name})
	if err != nil {
		return fmt.Errorf("generating otp secret: %w", err)
	}
	now := f.now()
	f.pending[pendingKey(userID, action)] = &pendingOtp{
		secret: key.Secret(),
		challenge: model.OtpChallenge{
			ID:        uuid.NewString(),
			UserID:    userID,
			UserName:  name,
			Action:    action,
			CreatedAt: now,
			ExpiresAt: now.Add(OtpTTL),
		},
	}
	return nil
}

func (f *Fake) RequestClockIn(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.clockInConflictLocked(userID); err != nil {
		return err
	}
	return f.issueLocked(userID, model.ActionClockIn)
}

func (f *Fake) RequestClockOut(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.clockOutConflictLocked(userID); err != nil {
		return err
	}
	return f.issueLocked(userID, model.ActionClockOut)
}

func (f *Fake) clockInConflictLocked(userID string) error {
	rec := f.todayLocked(userID)
	switch {
	case rec.HasClockOut():
		return attendance.ErrAlreadyCompletedToday
	case rec.HasClockIn():
		return attendance.ErrAlreadyClockedIn
	}
	return nil
}

func (f *Fake) clockOutConflictLocked(userID string) error {
	rec := f.todayLocked(userID)
	switch {
	case rec.HasClockOut():
		return attendance.ErrAlreadyClockedOut
	case !rec.HasClockIn():
		return attendance.ErrNoActiveClockIn
	}
	return nil
}

// checkOtpLocked validates code against the pending challenge and consumes
// the challenge on success or expiry.
func (f *Fake) checkOtpLocked(userID string, action model.Action, code string) error {
	key := pendingKey(userID, action)
	p, ok := f.pending[key]
	if !ok {
		return attendance.ErrInvalidOrExpiredOtp
	}
	now := f.now()
	if now.After(p.challenge.ExpiresAt) {
		delete(f.pending, key)
		return attendance.ErrExpiredOtp
	}
	valid, err := totp.ValidateCustom(code, p.secret, now, validateOpts)
	if err != nil || !valid {
		return attendance.ErrInvalidOtp
	}
	delete(f.pending, key)
	return nil
}

func (f *Fake) VerifyClockIn(ctx context.Context, userID, code string) (*model.AttendanceDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.clockInConflictLocked(userID); err != nil {
		return nil, err
	}
	if err := f.checkOtpLocked(userID, model.ActionClockIn, code); err != nil {
		return nil, err
	}
	now := f.now()
	status := model.StatusOnTime
	if now.Sub(timecalc.StartOfDay(now)) > f.LateAfter {
		status = model.StatusLate
	}
	rec := &model.AttendanceDay{
		UserID:      userID,
		Date:        now.Format(model.DateLayout),
		ClockInTime: &now,
		Status:      status,
	}
	days, ok := f.records[userID]
	if !ok {
		days = make(map[string]*model.AttendanceDay)
		f.records[userID] = days
	}
	days[rec.Date] = rec
	return rec.Clone(), nil
}

func (f *Fake) VerifyClockOut(ctx context.Context, userID, code string) (*model.AttendanceDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.clockOutConflictLocked(userID); err != nil {
		return nil, err
	}
	if err := f.checkOtpLocked(userID, model.ActionClockOut, code); err != nil {
		return nil, err
	}
	now := f.now()
	rec := f.todayLocked(userID)
	rec.ClockOutTime = &now
	if now.Sub(*rec.ClockInTime) < 4*time.Hour {
		rec.Status = model.StatusHalfDay
	}
	return rec.Clone(), nil
}

// FetchPendingOtps lists every unexpired challenge with its current code.
func (f *Fake) FetchPendingOtps(ctx context.Context) ([]model.OtpChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	out := []model.OtpChallenge{}
	for _, p := range f.pending {
		if now.After(p.challenge.ExpiresAt) {
			continue
		}
		c := p.challenge
		if code, err := totp.GenerateCodeCustom(p.secret, now, validateOpts); err == nil {
			c.Code = code
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
