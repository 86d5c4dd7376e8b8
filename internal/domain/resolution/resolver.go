package resolution

// Decision is the outcome of resolving one alert. Category is empty when no
// rule matched.
type Decision struct {
	Category string             `json:"category,omitempty" yaml:"category,omitempty"`
	Actions  []ResolutionAction `json:"actions" yaml:"actions"`
}

// Resolver evaluates a rule table against alerts. It performs no I/O and
// holds no mutable state; its output depends only on the alert and the table.
type Resolver struct {
	table *Table
}

// NewResolver creates a resolver over the given table. A nil table selects
// DefaultTable.
func NewResolver(table *Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	return &Resolver{table: table}
}

// Table returns the rule table the resolver evaluates.
func (r *Resolver) Table() *Table {
	return r.table
}

// Decide finds the first matching rule and builds its actions.
func (r *Resolver) Decide(alert AlertSignal) Decision {
	s := NewSignal(alert)
	for _, rule := range r.table.rules {
		if !rule.Match.Match(s) {
			continue
		}
		actions := rule.actions(s)
		if actions == nil {
			actions = []ResolutionAction{}
		}
		return Decision{Category: rule.Category, Actions: actions}
	}
	return Decision{Actions: []ResolutionAction{}}
}

// Resolve returns the ordered actions for an alert, empty when no rule
// matches or the matched rule lacks the metadata it needs.
func (r *Resolver) Resolve(alert AlertSignal) []ResolutionAction {
	return r.Decide(alert).Actions
}

// Match returns the category of the first rule that accepts the alert, or
// "" when none does. Actions are not built.
func (r *Resolver) Match(alert AlertSignal) string {
	s := NewSignal(alert)
	for _, rule := range r.table.rules {
		if rule.Match.Match(s) {
			return rule.Category
		}
	}
	return ""
}
