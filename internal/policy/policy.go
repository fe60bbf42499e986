// Package policy evaluates configurable retry rules against the outcome
// of a provider call. Rules are boolean expressions compiled once at
// construction; the first rule that evaluates to true permits a retry.
package policy

import (
	"errors"
	"fmt"
	"log"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/payment-core/internal/domain"
)

// Rule is one named retry rule.
type Rule struct {
	Name       string
	Expression string
}

// DefaultRules retries transient provider faults for the first two
// attempts and never retries definitive rejections.
var DefaultRules = []Rule{
	{Name: "retry-transient", Expression: "provider_unavailable && attempt_number < 3"},
}

// Enforcer holds the compiled rule set.
type Enforcer struct {
	rules []compiledRule
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// NewEnforcer compiles the rule set. A rule that fails to parse is a
// configuration error.
func NewEnforcer(rules []Rule) (*Enforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compile rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, expr: expr})
	}
	return &Enforcer{rules: compiled}, nil
}

// Outcome describes one failed provider call for rule evaluation.
type Outcome struct {
	Provider      domain.Provider
	AttemptNumber int // 1-based
	Err           error
}

// AllowRetry reports whether any rule permits retrying the failed call.
// Definitive rejections and validation errors are never retried,
// regardless of rules.
func (e *Enforcer) AllowRetry(o Outcome) bool {
	var rejected *domain.ProviderRejectedError
	if errors.As(o.Err, &rejected) {
		return false
	}
	if errors.Is(o.Err, domain.ErrValidationFailed) || errors.Is(o.Err, domain.ErrInvalidAmount) {
		return false
	}

	params := map[string]any{
		"provider":             string(o.Provider),
		"attempt_number":       o.AttemptNumber,
		"provider_unavailable": errors.Is(o.Err, domain.ErrProviderUnavailable),
	}
	for _, rule := range e.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			log.Printf("policy: rule %q evaluation failed: %v", rule.name, err)
			continue
		}
		if allow, ok := result.(bool); ok && allow {
			return true
		}
	}
	return false
}
