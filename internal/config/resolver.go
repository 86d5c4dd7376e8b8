package config

import (
	"fmt"
	"log/slog"

	celeval "github.com/SkySingh04/DreamOps-sub002/internal/adapter/outbound/cel"
	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// BuildTable returns the built-in table extended by the configured rules
// and fixtures. Config rules are placed before the built-in categories in
// file order; fixtures are appended to their category's catalogue.
func (c *Config) BuildTable(eval *celeval.Evaluator, logger *slog.Logger) (*resolution.Table, error) {
	table := resolution.DefaultTable()

	rules := make([]resolution.Rule, 0, len(c.Resolver.Rules))
	for _, rc := range c.Resolver.Rules {
		m, err := eval.NewMatcher(rc.Condition, logger.With("rule", rc.Name))
		if err != nil {
			return nil, fmt.Errorf("resolver rule %s: %w", rc.Name, err)
		}
		rules = append(rules, resolution.Rule{
			Category: rc.Name,
			Match:    m,
			Generic:  rc.Action.builder(),
		})
	}
	if len(rules) > 0 {
		var err error
		if table, err = table.Prepend(rules...); err != nil {
			return nil, fmt.Errorf("resolver rules: %w", err)
		}
	}

	for _, fc := range c.Resolver.Fixtures {
		var err error
		table, err = table.WithFixtures(fc.Category, resolution.Fixture{
			Deployment: fc.Deployment,
			Action: resolution.ActionTemplate{
				ActionType:       fc.ActionType,
				Description:      fc.Description,
				Params:           fc.Params,
				EstimatedTime:    fc.EstimatedTime,
				RollbackPossible: fc.Rollback,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("resolver fixture %s: %w", fc.Deployment, err)
		}
	}
	return table, nil
}

func (a ActionConfig) template() resolution.ActionTemplate {
	return resolution.ActionTemplate{
		ActionType:       a.Type,
		Description:      a.Description,
		Params:           a.Params,
		Confidence:       a.Confidence,
		RiskLevel:        resolution.RiskLevel(a.Risk),
		EstimatedTime:    a.EstimatedTime,
		RollbackPossible: a.Rollback,
	}
}

func (a ActionConfig) builder() resolution.Builder {
	if a.RequireDeployment {
		return resolution.RequireDeployment(a.template())
	}
	return resolution.Sequence{a.template()}
}
