package model

import "time"

// Action is a clock transition gated by an OTP. It doubles as the kind of
// a local flag.
type Action string

const (
	ActionClockIn  Action = "clockIn"
	ActionClockOut Action = "clockOut"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionClockIn || a == ActionClockOut
}

// Label is the human-readable form used in CLI messages.
func (a Action) Label() string {
	switch a {
	case ActionClockIn:
		return "clock-in"
	case ActionClockOut:
		return "clock-out"
	}
	return string(a)
}

// ChallengeStatus is the lifecycle position of a pending OTP challenge.
type ChallengeStatus string

const (
	ChallengeIdle          ChallengeStatus = "idle"
	ChallengeAwaitingEntry ChallengeStatus = "awaitingEntry"
	ChallengeSubmitting    ChallengeStatus = "submitting"
	ChallengeSucceeded     ChallengeStatus = "succeeded"
	ChallengeFailed        ChallengeStatus = "failed"
)

// FailureReason explains why a challenge submission failed.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonInvalidOtp        FailureReason = "InvalidOtp"
	ReasonExpiredOtp        FailureReason = "ExpiredOtp"
	ReasonNoActiveClockIn   FailureReason = "NoActiveClockIn"
	ReasonAlreadyClockedIn  FailureReason = "AlreadyClockedIn"
	ReasonAlreadyClockedOut FailureReason = "AlreadyClockedOut"
	ReasonUnknown           FailureReason = "Unknown"
)

// Terminal reports whether a failure closes the challenge for good.
func (r FailureReason) Terminal() bool {
	return r == ReasonAlreadyClockedOut || r == ReasonAlreadyClockedIn
}

// Challenge is the client-side record of one in-flight OTP-gated transition.
type Challenge struct {
	ID        string          `json:"id"`
	Action    Action          `json:"action"`
	UserID    string          `json:"user_id"`
	Date      string          `json:"date"`
	OtpValue  string          `json:"-"`
	Status    ChallengeStatus `json:"status"`
	Reason    FailureReason   `json:"reason,omitempty"`
	Attempts  int             `json:"attempts"`
	StartedAt time.Time       `json:"started_at"`
}

// Active reports whether the challenge still blocks new transitions.
// A succeeded challenge is settled, not active.
func (c *Challenge) Active() bool {
	if c == nil {
		return false
	}
	switch c.Status {
	case ChallengeIdle, ChallengeAwaitingEntry, ChallengeSubmitting, ChallengeFailed:
		return true
	}
	return false
}

// Succeeded reports whether the challenge's OTP was verified.
func (c *Challenge) Succeeded() bool {
	return c != nil && c.Status == ChallengeSucceeded
}

// Retryable reports whether Submit may be called again.
func (c *Challenge) Retryable() bool {
	if c == nil {
		return false
	}
	return c.Status == ChallengeAwaitingEntry || c.Status == ChallengeFailed
}

// Copy returns a detached snapshot.
func (c *Challenge) Copy() *Challenge {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// OtpChallenge is the manager-facing view of an outstanding OTP.
type OtpChallenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Action    Action    `json:"action"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
