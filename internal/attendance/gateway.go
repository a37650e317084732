package attendance

import (
	"context"
	"time"

	"github.com/Tiliavir/punch/internal/model"
)

// Gateway is the attendance server as seen by the engine. Implementations
// return the typed errors of this package: ErrAlreadyClockedIn and
// ErrAlreadyCompletedToday from RequestClockIn, ErrNoActiveClockIn and
// ErrAlreadyClockedOut from RequestClockOut, ErrInvalidOrExpiredOtp (or one
// of its refinements) from the verify calls, and ErrTransport otherwise.
type Gateway interface {
	// FetchTodayRecord returns nil, nil when the server has no record yet.
	FetchTodayRecord(ctx context.Context, userID string) (*model.AttendanceDay, error)
	FetchMonthRecords(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceDay, error)
	RequestClockIn(ctx context.Context, userID string) error
	RequestClockOut(ctx context.Context, userID string) error
	VerifyClockIn(ctx context.Context, userID, otp string) (*model.AttendanceDay, error)
	VerifyClockOut(ctx context.Context, userID, otp string) (*model.AttendanceDay, error)
	FetchPendingOtps(ctx context.Context) ([]model.OtpChallenge, error)
}

// LocalCache persists the tentative per-day flags across restarts.
type LocalCache interface {
	Get(userID string, day time.Time, kind model.Action) (bool, error)
	Set(userID string, day time.Time, kind model.Action, value bool) error
	ClearDay(userID string, day time.Time) error
}
