package domain

import "time"

// AuditLog is one audit trail entry for a pairing or device event.
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
