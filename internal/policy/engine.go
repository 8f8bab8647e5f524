// Package policy evaluates the credential-issuance policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is the evaluation input for one credential request.
type Input struct {
	UserID         string   `json:"user_id"`
	Origin         string   `json:"origin"`
	TrustedOrigins []string `json:"trusted_origins"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.credential_policy.decision"),
		rego.Module("credential_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate decides whether a credential may be issued for the input.
// An empty result set falls back to allow; the default policy defines its own
// default.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the default credential-issuance policy: reject requests
// without a user identity, and when a trusted-origin list is configured the
// request origin must be on it.
const DefaultPolicy = `
package credential_policy

import rego.v1

default decision := "allow"

decision := "deny" if {
	input.user_id == ""
}

decision := "deny" if {
	count(input.trusted_origins) > 0
	not origin_trusted
}

origin_trusted if {
	input.origin in input.trusted_origins
}
`
