// Package service implements the device registry: minting, listing,
// revoking, and authenticating paired devices.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"mobile-pairing/backend/internal/device/domain"
	"mobile-pairing/backend/internal/device/repository"
	"mobile-pairing/backend/internal/security"
)

// Sentinel errors for the device registry; handlers map them to HTTP codes.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceRevoked  = errors.New("device revoked")
	ErrInvalidToken   = errors.New("invalid device token")
)

const maxDeviceNameLen = 64

// Registry manages paired device records and their tokens. Device tokens are
// minted once, stored only as hashes, and never re-displayed.
type Registry struct {
	repo repository.Repository
	nowF func() time.Time
}

// NewRegistry returns a Registry backed by the given repository.
func NewRegistry(repo repository.Repository) *Registry {
	return &Registry{
		repo: repo,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Create mints a new device for the account and returns the device and the
// raw token. The raw token is not retrievable again after this call.
func (r *Registry) Create(ctx context.Context, accountID, name string) (*domain.Device, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Mobile device"
	}
	if len(name) > maxDeviceNameLen {
		name = name[:maxDeviceNameLen]
	}
	rawToken, err := security.NewDeviceToken()
	if err != nil {
		return nil, "", err
	}
	d := &domain.Device{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Name:      name,
		TokenHash: security.HashDeviceToken(rawToken),
		PairedAt:  r.nowF(),
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return nil, "", err
	}
	return d, rawToken, nil
}

// List returns all devices for the account. Token hashes stay internal;
// handlers must not serialize them.
func (r *Registry) List(ctx context.Context, accountID string) ([]*domain.Device, error) {
	return r.repo.ListByAccount(ctx, accountID)
}

// Revoke marks the device revoked. The requesting account must own the
// device; a non-owner gets ErrDeviceNotFound rather than a hint that the ID
// exists. Revocation takes effect for the next token check by any consumer.
func (r *Registry) Revoke(ctx context.Context, deviceID, requestingAccountID string) error {
	d, err := r.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if d == nil || d.AccountID != requestingAccountID {
		return ErrDeviceNotFound
	}
	if d.Revoked() {
		return nil
	}
	return r.repo.Revoke(ctx, deviceID, r.nowF())
}

// Discard removes a device record entirely. Used only to roll back a device
// minted for a pairing completion that lost its race; no orphaned record
// survives.
func (r *Registry) Discard(ctx context.Context, deviceID string) error {
	return r.repo.Delete(ctx, deviceID)
}

// Touch updates the device's last-used timestamp. Best-effort contract for
// authenticated device activity.
func (r *Registry) Touch(ctx context.Context, deviceID string) error {
	return r.repo.UpdateLastUsed(ctx, deviceID, r.nowF())
}

// Authenticate resolves a raw device token to its device. The revocation
// flag is consulted on every call; there is no cached fast path. Successful
// use updates last_used_at.
func (r *Registry) Authenticate(ctx context.Context, rawToken string) (*domain.Device, error) {
	if !security.IsDeviceToken(rawToken) {
		return nil, ErrInvalidToken
	}
	d, err := r.repo.GetByTokenHash(ctx, security.HashDeviceToken(rawToken))
	if err != nil {
		return nil, err
	}
	if d == nil || !security.DeviceTokenHashEqual(rawToken, d.TokenHash) {
		return nil, ErrInvalidToken
	}
	if d.Revoked() {
		return nil, ErrDeviceRevoked
	}
	if err := r.Touch(ctx, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}
