package attendance

import (
	"errors"
	"fmt"

	"github.com/Tiliavir/punch/internal/model"
)

// Guard violations. These are local refusals; no state changes.
var (
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrChallengeAlreadyActive = errors.New("a challenge is already active")
	ErrNoActiveChallenge      = errors.New("no active challenge")
	ErrSubmitInProgress       = errors.New("submission already in progress")
	ErrEmptyOtp               = errors.New("otp is empty")
	ErrMalformedOtp           = errors.New("otp is malformed")
)

// OTP rejections. The challenge stays open.
var (
	ErrInvalidOrExpiredOtp = errors.New("otp is invalid or expired")
	ErrInvalidOtp          = fmt.Errorf("%w: code not accepted", ErrInvalidOrExpiredOtp)
	ErrExpiredOtp          = fmt.Errorf("%w: code expired", ErrInvalidOrExpiredOtp)
)

// Server-state conflicts. The local view drifted from the server.
var (
	ErrAlreadyClockedIn      = errors.New("already clocked in today")
	ErrAlreadyCompletedToday = errors.New("attendance already completed today")
	ErrNoActiveClockIn       = errors.New("no active clock-in today")
	ErrAlreadyClockedOut     = errors.New("already clocked out today")
)

// Transport failures. Retryable, nothing local is mutated.
var (
	ErrTransport     = errors.New("attendance server unreachable")
	ErrSubmitTimeout = errors.New("otp verification timed out")
	ErrStaleResponse = errors.New("response belongs to a challenge that is no longer active")
)

// IsConflict reports whether err is a server-state conflict that calls for a
// resynchronisation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyClockedIn) ||
		errors.Is(err, ErrAlreadyCompletedToday) ||
		errors.Is(err, ErrNoActiveClockIn) ||
		errors.Is(err, ErrAlreadyClockedOut)
}

// ChallengeError is returned by the flow when the server refuses a
// transition. Reason is the typed classification; Err the underlying cause.
type ChallengeError struct {
	Action model.Action
	Reason model.FailureReason
	Err    error
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Action.Label(), e.reason(), e.Err)
}

func (e *ChallengeError) Unwrap() error { return e.Err }

func (e *ChallengeError) reason() model.FailureReason {
	if e.Reason == model.ReasonNone {
		return model.ReasonUnknown
	}
	return e.Reason
}

// Message is the text shown to the user.
func (e *ChallengeError) Message() string {
	switch e.reason() {
	case model.ReasonInvalidOtp:
		if errors.Is(e.Err, ErrInvalidOtp) {
			return "The code was not accepted. Check it and try again, or cancel."
		}
		return "The code is invalid or has expired. Try again, or cancel."
	case model.ReasonExpiredOtp:
		return "The code has expired. Ask your manager for a new one, or cancel."
	case model.ReasonNoActiveClockIn:
		return "The server has no clock-in for you today. Status has been refreshed."
	case model.ReasonAlreadyClockedIn:
		return "You are already clocked in today."
	case model.ReasonAlreadyClockedOut:
		if errors.Is(e.Err, ErrAlreadyCompletedToday) {
			return "Your attendance for today is already complete."
		}
		return "You have already clocked out today."
	}
	if errors.Is(e.Err, ErrSubmitTimeout) {
		return "The server did not answer in time. Try again."
	}
	return fmt.Sprintf("The %s could not be completed. Try again.", e.Action.Label())
}

// reasonFor classifies a gateway error for the given action.
func reasonFor(action model.Action, err error) model.FailureReason {
	switch {
	case errors.Is(err, ErrExpiredOtp):
		return model.ReasonExpiredOtp
	case errors.Is(err, ErrInvalidOrExpiredOtp):
		return model.ReasonInvalidOtp
	case errors.Is(err, ErrNoActiveClockIn) && action == model.ActionClockOut:
		return model.ReasonNoActiveClockIn
	case errors.Is(err, ErrAlreadyClockedOut), errors.Is(err, ErrAlreadyCompletedToday):
		return model.ReasonAlreadyClockedOut
	case errors.Is(err, ErrAlreadyClockedIn) && action == model.ActionClockIn:
		return model.ReasonAlreadyClockedIn
	}
	return model.ReasonUnknown
}
