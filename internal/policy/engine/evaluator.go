package engine

import (
	"context"

	identitydomain "mobile-pairing/backend/internal/identity/domain"
)

// Evaluator decides whether an account may initiate device pairing.
// Deployments that want to restrict pairing (e.g. to administrators) supply
// their own Rego module; code never hardcodes the answer.
type Evaluator interface {
	// AllowPairing evaluates the pairing authorization policy for the
	// initiating account.
	AllowPairing(ctx context.Context, account *identitydomain.Account) (bool, error)
}
