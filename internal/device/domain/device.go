package domain

import "time"

// Device represents a paired mobile device for an account. TokenHash is the
// SHA-256 of the device token; the raw token is returned exactly once at
// mint time and never stored.
type Device struct {
	ID         string
	AccountID  string
	Name       string
	TokenHash  string
	PairedAt   time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the device has been revoked. Only revocation gates
// authorization, never token age.
func (d *Device) Revoked() bool {
	return d.RevokedAt != nil
}
