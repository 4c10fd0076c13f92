package domain

import "time"

// AccountStatus is the lifecycle status of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account represents a local user account with password and TOTP credentials.
// PasswordHash is bcrypt; TOTPSecret is the base32 secret for the standard
// time-based second factor used at ordinary login.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	TOTPSecret   string
	Status       AccountStatus
	CreatedAt    time.Time
}
