// Package cel provides the CEL evaluator behind config-defined resolver
// rule conditions.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// Limits applied to config-defined conditions.
const (
	maxExpressionLength = 1024
	maxNestingDepth     = 50
	maxCostBudget       = 100_000
	evalTimeout         = time.Second
	// interruptCheckFreq is in comprehension iterations.
	interruptCheckFreq = 100
)

// Evaluator compiles and evaluates CEL rule conditions over alerts.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a new CEL evaluator with the alert environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewAlertEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create alert environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks an expression, returning a compiled program.
// The expression must produce a bool.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, iss := e.env.Compile(expression)
	if err := iss.Err(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}

	return e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
}

// nestingDepth returns the deepest bracket nesting in expr.
func nestingDepth(expr string) int {
	depth, deepest := 0, 0
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			deepest = max(deepest, depth)
		case ')', ']', '}':
			depth--
		}
	}
	return deepest
}

// ValidateExpression checks that a condition is non-empty, within the size
// limits, and compiles to a boolean program.
func (e *Evaluator) ValidateExpression(expr string) error {
	switch {
	case expr == "":
		return errors.New("expression is empty")
	case len(expr) > maxExpressionLength:
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if d := nestingDepth(expr); d > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", d, maxNestingDepth)
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Evaluate runs a compiled program against a normalized alert under the
// evaluation timeout.
func (e *Evaluator) Evaluate(prg cel.Program, s resolution.Signal) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	out, _, err := prg.ContextEval(ctx, BuildAlertActivation(s))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, not bool", out.Value())
	}
	return matched, nil
}
