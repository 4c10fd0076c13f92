package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"mobile-pairing/backend/internal/device/domain"
	"mobile-pairing/backend/internal/security"
)

type memDeviceRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{m: map[string]*domain.Device{}}
}

func (r *memDeviceRepo) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.m[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r *memDeviceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.m {
		if d.TokenHash == tokenHash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memDeviceRepo) ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Device
	for _, d := range r.m {
		if d.AccountID == accountID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.m[d.ID] = &cp
	return nil
}

func (r *memDeviceRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.m[id]; ok {
		d.RevokedAt = &at
	}
	return nil
}

func (r *memDeviceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *memDeviceRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.m[id]; ok {
		d.LastUsedAt = &at
	}
	return nil
}

func TestRegistry_Create_StoresOnlyHash(t *testing.T) {
	repo := newMemDeviceRepo()
	reg := NewRegistry(repo)

	d, rawToken, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rawToken == "" {
		t.Fatal("raw token should be returned at mint time")
	}
	if d.TokenHash == rawToken {
		t.Error("stored hash must not equal the raw token")
	}
	if d.TokenHash != security.HashDeviceToken(rawToken) {
		t.Error("stored hash should be the hash of the raw token")
	}
	if d.Name != "Pixel 8" {
		t.Errorf("Name = %q, want Pixel 8", d.Name)
	}
}

func TestRegistry_Create_DefaultsEmptyName(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	d, _, err := reg.Create(context.Background(), "acct-1", "   ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Name == "" {
		t.Error("blank name should be defaulted")
	}
}

func TestRegistry_Authenticate(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	d, rawToken, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := reg.Authenticate(context.Background(), rawToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("device ID = %q, want %q", got.ID, d.ID)
	}
}

func TestRegistry_Authenticate_TouchesLastUsed(t *testing.T) {
	repo := newMemDeviceRepo()
	reg := NewRegistry(repo)
	d, rawToken, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := reg.Authenticate(context.Background(), rawToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), d.ID)
	if stored.LastUsedAt == nil {
		t.Error("Authenticate should update last_used_at")
	}
}

func TestRegistry_Authenticate_UnknownToken(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	if _, err := reg.Authenticate(context.Background(), "mpd_unknown"); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken, got %v", err)
	}
	if _, err := reg.Authenticate(context.Background(), "not-a-device-token"); err != ErrInvalidToken {
		t.Errorf("want ErrInvalidToken for unprefixed token, got %v", err)
	}
}

func TestRegistry_RevokeThenAuthenticate(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	d, rawToken, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := reg.Revoke(context.Background(), d.ID, "acct-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// The very next check must see the revocation.
	if _, err := reg.Authenticate(context.Background(), rawToken); err != ErrDeviceRevoked {
		t.Errorf("want ErrDeviceRevoked immediately after revoke, got %v", err)
	}
}

func TestRegistry_Revoke_OwnershipEnforced(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	d, rawToken, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := reg.Revoke(context.Background(), d.ID, "acct-2"); err != ErrDeviceNotFound {
		t.Errorf("non-owner revoke: want ErrDeviceNotFound, got %v", err)
	}
	// Device still usable by its owner.
	if _, err := reg.Authenticate(context.Background(), rawToken); err != nil {
		t.Errorf("device should still authenticate after failed revoke: %v", err)
	}
}

func TestRegistry_Revoke_Idempotent(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	d, _, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Revoke(context.Background(), d.ID, "acct-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := reg.Revoke(context.Background(), d.ID, "acct-1"); err != nil {
		t.Errorf("second Revoke should be a no-op, got %v", err)
	}
}

func TestRegistry_Discard(t *testing.T) {
	repo := newMemDeviceRepo()
	reg := NewRegistry(repo)
	d, _, err := reg.Create(context.Background(), "acct-1", "Pixel 8")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Discard(context.Background(), d.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), d.ID)
	if got != nil {
		t.Error("Discard should remove the device record")
	}
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry(newMemDeviceRepo())
	if _, _, err := reg.Create(context.Background(), "acct-1", "Pixel 8"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := reg.Create(context.Background(), "acct-2", "Other"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := reg.List(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d devices, want 1", len(list))
	}
	if list[0].Name != "Pixel 8" {
		t.Errorf("device name = %q, want Pixel 8", list[0].Name)
	}
}
