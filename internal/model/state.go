package model

// State is a node of the per-user, per-day clock state machine.
//
//	NOT_CLOCKED_IN --request clockIn--> AWAITING_CLOCKIN_OTP --verified--> CLOCKED_IN
//	CLOCKED_IN --request clockOut--> AWAITING_CLOCKOUT_OTP --verified--> CLOCKED_OUT
//
// CLOCKED_OUT is terminal for the day.
type State string

const (
	StateNotClockedIn        State = "NOT_CLOCKED_IN"
	StateAwaitingClockInOtp  State = "AWAITING_CLOCKIN_OTP"
	StateClockedIn           State = "CLOCKED_IN"
	StateAwaitingClockOutOtp State = "AWAITING_CLOCKOUT_OTP"
	StateClockedOut          State = "CLOCKED_OUT"
)

// StateOf places a derived status and the active challenge on the machine.
func StateOf(status ClockStatus, active *Challenge) State {
	if active.Active() {
		if active.Action == ActionClockOut {
			return StateAwaitingClockOutOtp
		}
		return StateAwaitingClockInOtp
	}
	switch {
	case status.HasClockedOutToday:
		return StateClockedOut
	case status.HasClockedInToday:
		return StateClockedIn
	}
	return StateNotClockedIn
}
