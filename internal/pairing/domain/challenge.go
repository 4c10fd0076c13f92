package domain

import "time"

// State is the lifecycle state of a pairing challenge. Transitions are
// monotonic: waiting_otp → otp_verified → completed, with failed and
// expired as absorbing failure states.
type State string

const (
	StateWaitingOTP  State = "waiting_otp"
	StateOTPVerified State = "otp_verified"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateExpired     State = "expired"
)

// Terminal reports whether s permits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// CanTransition reports whether from → to is a legal forward move.
// Any non-terminal state may move to failed or expired.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateFailed, StateExpired:
		return true
	case StateOTPVerified:
		return from == StateWaitingOTP
	case StateCompleted:
		return from == StateOTPVerified
	default:
		return false
	}
}

// Challenge tracks one pairing attempt. The OTP is held only as a hash and
// the hash is cleared once the code has been redeemed.
type Challenge struct {
	ID                 string
	InitiatorAccountID string
	OTPHash            string
	OTPAttemptsRemaining int
	OTPExpiresAt       time.Time
	OverallExpiresAt   time.Time
	State              State
	ServerURLOverride  string
	BoundDeviceID      string
	CreatedAt          time.Time
}

// ExpiredAt reports whether the challenge's outer TTL has passed at now.
func (c *Challenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.OverallExpiresAt)
}

// OTPWindowClosedAt reports whether the one-time code window has passed at now.
func (c *Challenge) OTPWindowClosedAt(now time.Time) bool {
	return !now.Before(c.OTPExpiresAt)
}
