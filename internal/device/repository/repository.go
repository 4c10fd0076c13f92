package repository

import (
	"context"
	"time"

	"mobile-pairing/backend/internal/device/domain"
)

// Repository defines persistence for paired devices.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Device, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) error
	Revoke(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}
