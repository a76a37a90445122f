package query

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/metrics"
)

//go:embed mutation.rego
var mutationPolicy string

const (
	decisionQuery = "data.curriculum.mutation.decision"
	policyError   = "Operation rejected: safety policy could not be evaluated."
)

// Operation types checked by CheckMutationSafety.
const (
	OpSoftRefinement = "soft_refinement"
	OpHardRefinement = "hard_refinement"
)

var injectionIndicators = []string{
	"ignore previous",
	"forget about",
	"forget the",
	"override",
	"ignore all",
	"system instructions",
}

// SafetyGuard screens questions for prompt injection and refinements for
// disallowed mutations. Mutation rules live in an embedded Rego policy.
type SafetyGuard struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewSafetyGuard compiles the built-in mutation policy.
func NewSafetyGuard(ctx context.Context, logger *zap.Logger) (*SafetyGuard, error) {
	return NewSafetyGuardWithPolicy(ctx, mutationPolicy, logger)
}

// NewSafetyGuardWithPolicy compiles policy, which must define
// data.curriculum.mutation.decision.
func NewSafetyGuardWithPolicy(ctx context.Context, policy string, logger *zap.Logger) (*SafetyGuard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("mutation.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mutation policy: %w", err)
	}
	return &SafetyGuard{query: q, logger: logger}, nil
}

// CheckInjection reports whether text is free of known instruction-override
// patterns.
func (g *SafetyGuard) CheckInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range injectionIndicators {
		if strings.Contains(lower, ind) {
			metrics.SafetyRejections.WithLabelValues("injection").Inc()
			return false
		}
	}
	return true
}

// CheckMutationSafety evaluates the mutation policy. Evaluation failures
// reject the operation.
func (g *SafetyGuard) CheckMutationSafety(ctx context.Context, description, operationType string) (bool, string) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"description":    description,
		"operation_type": operationType,
	}))
	if err != nil {
		g.logger.Error("Mutation policy evaluation failed", zap.Error(err))
		metrics.SafetyRejections.WithLabelValues("policy_error").Inc()
		return false, policyError
	}
	allow, reason, ok := parseDecision(rs)
	if !ok {
		g.logger.Error("Mutation policy returned no decision", zap.String("operation_type", operationType))
		metrics.SafetyRejections.WithLabelValues("policy_error").Inc()
		return false, policyError
	}
	if !allow {
		metrics.SafetyRejections.WithLabelValues("mutation").Inc()
	}
	return allow, reason
}

func parseDecision(rs rego.ResultSet) (bool, string, bool) {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, "", false
	}
	m, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return false, "", false
	}
	allow, ok := m["allow"].(bool)
	if !ok {
		return false, "", false
	}
	reason, _ := m["reason"].(string)
	return allow, reason, true
}
