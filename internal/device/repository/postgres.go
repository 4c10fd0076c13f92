package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mobile-pairing/backend/internal/device/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const deviceColumns = "id, account_id, name, token_hash, paired_at, last_used_at, revoked_at"

// GetByID returns the device for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = $1", id)
	return scanDevice(row)
}

// GetByTokenHash returns the device for tokenHash, or nil if not found.
// The revocation flag is read fresh on every call so a revoke takes effect
// for the very next authorization check.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE token_hash = $1", tokenHash)
	return scanDevice(row)
}

// ListByAccount returns all devices for the given account, newest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE account_id = $1 ORDER BY paired_at DESC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		d, err := scanDeviceRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create persists the device to the database. The device must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.Device) error {
	lastUsed := sql.NullTime{}
	if d.LastUsedAt != nil {
		lastUsed = sql.NullTime{Time: *d.LastUsedAt, Valid: true}
	}
	revokedAt := sql.NullTime{}
	if d.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: *d.RevokedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, account_id, name, token_hash, paired_at, last_used_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.AccountID, d.Name, d.TokenHash, d.PairedAt, lastUsed, revokedAt,
	)
	return err
}

// Revoke sets revoked_at for the given device id.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE devices SET revoked_at = $2 WHERE id = $1", id, at)
	return err
}

// Delete removes the device row. Used to roll back a freshly minted device
// when its pairing completion loses the race.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = $1", id)
	return err
}

// UpdateLastUsed sets the device's last-used timestamp for the given id.
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE devices SET last_used_at = $2 WHERE id = $1", id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row *sql.Row) (*domain.Device, error) {
	d, err := scanDeviceRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func scanDeviceRows(s rowScanner) (*domain.Device, error) {
	var d domain.Device
	var lastUsed, revokedAt sql.NullTime
	if err := s.Scan(&d.ID, &d.AccountID, &d.Name, &d.TokenHash, &d.PairedAt, &lastUsed, &revokedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		d.LastUsedAt = &lastUsed.Time
	}
	if revokedAt.Valid {
		d.RevokedAt = &revokedAt.Time
	}
	return &d, nil
}
