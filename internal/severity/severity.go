// Package severity evaluates the §7 allow_errors promotion policy and the
// §4.F.5 archive-threshold decision through an embedded Rego policy, the
// way the teacher's internal/policy evaluates VHDL compliance rules against
// extracted facts and returns a structured Result.
package severity

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/plcrecord/pvgen/internal/diagnostics"
)

//go:embed severity.rego
var policySource string

// Action is the disposition the severity policy assigns to one diagnostic.
type Action string

const (
	ActionAbort Action = "abort"
	ActionWarn  Action = "warn"
	ActionSkip  Action = "skip"
)

// Engine evaluates the embedded severity.rego policy.
type Engine struct {
	actionQuery  rego.PreparedEvalQuery
	archiveQuery rego.PreparedEvalQuery
}

// New prepares the Engine's queries against the embedded policy module.
func New() (*Engine, error) {
	ctx := context.Background()

	actionQuery, err := rego.New(
		rego.Module("severity.rego", policySource),
		rego.Query("data.pvgen.severity.action"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("severity: preparing action query: %w", err)
	}

	archiveQuery, err := rego.New(
		rego.Module("severity.rego", policySource),
		rego.Query("data.pvgen.severity.archive_suppressed"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("severity: preparing archive query: %w", err)
	}

	return &Engine{actionQuery: actionQuery, archiveQuery: archiveQuery}, nil
}

// Decide evaluates the allow_errors promotion policy for one diagnostic.
func (e *Engine) Decide(kind diagnostics.Kind, allowErrors bool) (Action, error) {
	input := map[string]interface{}{
		"fatal":        kind.Fatal(),
		"allow_errors": allowErrors,
	}
	rs, err := e.actionQuery.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("severity: evaluating action for %s: %w", kind, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return ActionSkip, nil
	}
	s, _ := rs[0].Expressions[0].Value.(string)
	return Action(s), nil
}

// ArchiveSuppressed evaluates the §4.F.5 threshold decision.
func (e *Engine) ArchiveSuppressed(isArray bool, elementCount, threshold int) (bool, error) {
	input := map[string]interface{}{
		"is_array":          isArray,
		"element_count":     elementCount,
		"archive_threshold": threshold,
	}
	rs, err := e.archiveQuery.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("severity: evaluating archive_suppressed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	b, _ := rs[0].Expressions[0].Value.(bool)
	return b, nil
}
