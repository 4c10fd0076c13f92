package service

import (
	"context"
	"errors"
	"strings"

	"mobile-pairing/backend/internal/identity/domain"
	"mobile-pairing/backend/internal/security"
)

// ErrInvalidCredentials is returned for any password verification failure:
// unknown username, suspended account, or wrong password. Callers must not
// reveal which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AccountRepo is the minimal account repository needed by the verifier.
type AccountRepo interface {
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// PasswordVerifier checks a username/password pair against the account store.
// It is the identity collaborator consumed by the pairing credential gate.
type PasswordVerifier struct {
	repo   AccountRepo
	hasher *security.Hasher
}

// NewPasswordVerifier returns a PasswordVerifier with the given dependencies.
func NewPasswordVerifier(repo AccountRepo, hasher *security.Hasher) *PasswordVerifier {
	return &PasswordVerifier{repo: repo, hasher: hasher}
}

// VerifyPassword authenticates username/password and returns the account.
// Returns ErrInvalidCredentials on any mismatch or for inactive accounts.
func (v *PasswordVerifier) VerifyPassword(ctx context.Context, username, password string) (*domain.Account, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := v.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status != domain.AccountStatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := v.hasher.Compare(acct.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

// GetAccount returns the account for id, or nil if not found.
func (v *PasswordVerifier) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return v.repo.GetByID(ctx, id)
}
