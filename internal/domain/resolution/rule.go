package resolution

import (
	"errors"
	"fmt"
	"strings"
)

// ActionTemplate describes an action before it is bound to an alert. String
// values in Description and Params may reference {deployment} and
// {namespace}, which are filled from the alert or the matched fixture.
type ActionTemplate struct {
	ActionType       string
	Description      string
	Params           map[string]any
	Confidence       float64
	RiskLevel        RiskLevel
	EstimatedTime    string
	RollbackPossible bool
}

// Validate checks the template's static fields.
func (t ActionTemplate) Validate() error {
	if t.ActionType == "" {
		return errors.New("action type is required")
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", t.Confidence)
	}
	if !t.RiskLevel.Valid() {
		return fmt.Errorf("unknown risk level %q", t.RiskLevel)
	}
	return nil
}

// Bind produces a fresh action for the given deployment and namespace.
// Params are deep-copied so results never alias the template.
func (t ActionTemplate) Bind(deployment, namespace string) ResolutionAction {
	r := strings.NewReplacer("{deployment}", deployment, "{namespace}", namespace)
	params := make(map[string]any, len(t.Params))
	for k, v := range t.Params {
		params[k] = bindValue(v, r)
	}
	return ResolutionAction{
		ActionType:       t.ActionType,
		Description:      r.Replace(t.Description),
		Params:           params,
		Confidence:       clamp(t.Confidence),
		RiskLevel:        t.RiskLevel,
		EstimatedTime:    t.EstimatedTime,
		RollbackPossible: t.RollbackPossible,
	}
}

func bindValue(v any, r *strings.Replacer) any {
	switch val := v.(type) {
	case string:
		return r.Replace(val)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = r.Replace(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = bindValue(item, r)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = bindValue(item, r)
		}
		return out
	default:
		return v
	}
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Fixture is a catalogued deployment with a pre-validated remedy. A fixture
// action is always emitted with confidence 1.0 and low risk.
type Fixture struct {
	Deployment string
	Action     ActionTemplate
}

// matches reports whether the alert names the fixture's deployment, either
// in its metadata or in its description.
func (f Fixture) matches(s Signal) bool {
	name := strings.ToLower(f.Deployment)
	if name == "" {
		return false
	}
	if strings.ToLower(s.Deployment()) == name {
		return true
	}
	return strings.Contains(s.Text, name)
}

func (f Fixture) bind(s Signal) ResolutionAction {
	a := f.Action.Bind(f.Deployment, s.Namespace())
	a.Confidence = 1.0
	a.RiskLevel = RiskLow
	return a
}

// Builder turns a matched alert into actions for the generic case.
type Builder interface {
	Build(s Signal) []ResolutionAction
	// Templates lists the actions the builder can emit, for introspection.
	Templates() []ActionTemplate
}

// RequireDeployment emits the template bound to the alert's deployment, or
// nothing when the alert names no deployment.
type RequireDeployment ActionTemplate

func (b RequireDeployment) Build(s Signal) []ResolutionAction {
	dep := s.Deployment()
	if dep == "" {
		return nil
	}
	return []ResolutionAction{ActionTemplate(b).Bind(dep, s.Namespace())}
}

func (b RequireDeployment) Templates() []ActionTemplate {
	return []ActionTemplate{ActionTemplate(b)}
}

// Sequence emits every template in order, whatever the metadata holds.
type Sequence []ActionTemplate

func (b Sequence) Build(s Signal) []ResolutionAction {
	out := make([]ResolutionAction, 0, len(b))
	for _, t := range b {
		out = append(out, t.Bind(s.Deployment(), s.Namespace()))
	}
	return out
}

func (b Sequence) Templates() []ActionTemplate {
	return append([]ActionTemplate(nil), b...)
}

// Rule pairs a category predicate with the actions it emits. Known fixtures
// are checked first; otherwise the generic builder runs.
type Rule struct {
	Category string
	Match    Matcher
	Fixtures []Fixture
	Generic  Builder
}

// Validate checks that the rule is complete.
func (r Rule) Validate() error {
	if r.Category == "" {
		return errors.New("category is required")
	}
	if r.Match == nil {
		return fmt.Errorf("rule %s: matcher is required", r.Category)
	}
	for i, f := range r.Fixtures {
		if f.Deployment == "" {
			return fmt.Errorf("rule %s: fixture %d: deployment is required", r.Category, i)
		}
		// Fixture confidence and risk are fixed at bind time.
		a := f.Action
		a.Confidence, a.RiskLevel = 1.0, RiskLow
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rule %s: fixture %s: %w", r.Category, f.Deployment, err)
		}
	}
	if r.Generic != nil {
		for _, t := range r.Generic.Templates() {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("rule %s: %w", r.Category, err)
			}
		}
	}
	return nil
}

// actions returns the actions for an alert already known to match.
func (r Rule) actions(s Signal) []ResolutionAction {
	for _, f := range r.Fixtures {
		if f.matches(s) {
			return []ResolutionAction{f.bind(s)}
		}
	}
	if r.Generic == nil {
		return nil
	}
	return r.Generic.Build(s)
}
