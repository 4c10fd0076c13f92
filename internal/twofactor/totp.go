// Package twofactor validates the time-based second factor (TOTP) used at
// ordinary login. The pairing credential gate consumes it as a collaborator.
package twofactor

import (
	"context"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Verifier validates a TOTP code against an account's stored secret.
type Verifier interface {
	Verify(ctx context.Context, secret, code string) bool
}

// TOTPVerifier validates codes with the standard 30s period and one step of
// clock skew in either direction.
type TOTPVerifier struct{}

// NewTOTPVerifier returns a TOTPVerifier.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{}
}

// Verify reports whether code is currently valid for secret. An empty secret
// never validates.
func (v *TOTPVerifier) Verify(ctx context.Context, secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateSecret creates a new TOTP secret and provisioning URL for an
// account. Used by seeding and by the product's 2FA enrollment, which is
// outside the pairing flow.
func GenerateSecret(issuer, accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      30,
		SecretSize:  32,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}
