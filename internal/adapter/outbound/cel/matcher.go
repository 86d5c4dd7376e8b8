package cel

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// Matcher is a resolution.Matcher backed by a compiled CEL condition.
// An evaluation error counts as no match and is logged.
type Matcher struct {
	expr   string
	prg    cel.Program
	eval   *Evaluator
	logger *slog.Logger
}

// NewMatcher validates and compiles the condition once.
func (e *Evaluator) NewMatcher(expr string, logger *slog.Logger) (*Matcher, error) {
	if err := e.ValidateExpression(expr); err != nil {
		return nil, err
	}
	prg, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Matcher{expr: expr, prg: prg, eval: e, logger: logger}, nil
}

// Match evaluates the condition against the signal.
func (m *Matcher) Match(s resolution.Signal) bool {
	ok, err := m.eval.Evaluate(m.prg, s)
	if err != nil {
		m.logger.Warn("rule condition failed", "condition", m.expr, "error", err)
		return false
	}
	return ok
}

// String returns the condition in the form used by the table fingerprint.
func (m *Matcher) String() string {
	return fmt.Sprintf("cel(%s)", m.expr)
}

var _ resolution.Matcher = (*Matcher)(nil)
