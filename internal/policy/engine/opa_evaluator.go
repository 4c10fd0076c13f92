package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	identitydomain "mobile-pairing/backend/internal/identity/domain"
)

const policyQuery = "data.pairing.authz.allow"

// Default Rego policy: any active account may pair a device.
const defaultRegoPolicy = `package pairing.authz

default allow = false

allow if {
	input.account.status == "active"
}
`

// OPAEvaluator evaluates the pairing authorization policy using OPA Rego.
type OPAEvaluator struct {
	module string
}

// NewOPAEvaluator returns an OPA-based evaluator. module overrides the
// default policy when non-empty; it must define data.pairing.authz.allow.
func NewOPAEvaluator(module string) *OPAEvaluator {
	if module == "" {
		module = defaultRegoPolicy
	}
	return &OPAEvaluator{module: module}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and
// evaluate the configured policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	input := map[string]interface{}{
		"account": map[string]interface{}{"id": "", "username": "", "status": "active"},
	}
	if _, err := e.eval(ctx, input); err != nil {
		return fmt.Errorf("pairing policy: %w", err)
	}
	return nil
}

// AllowPairing evaluates the policy for the initiating account. Evaluation
// failures deny and are logged; a broken custom policy must not open the gate.
func (e *OPAEvaluator) AllowPairing(ctx context.Context, account *identitydomain.Account) (bool, error) {
	if account == nil {
		return false, nil
	}
	input := map[string]interface{}{
		"account": map[string]interface{}{
			"id":       account.ID,
			"username": account.Username,
			"status":   string(account.Status),
		},
	}
	allowed, err := e.eval(ctx, input)
	if err != nil {
		log.Printf("policy: pairing authorization evaluation failed: %v", err)
		return false, err
	}
	return allowed, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, input map[string]interface{}) (bool, error) {
	compiler, err := ast.CompileModules(map[string]string{"pairing_authz.rego": e.module})
	if err != nil {
		return false, fmt.Errorf("compile policy: %w", err)
	}
	q := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy query returned non-boolean")
	}
	return allowed, nil
}
