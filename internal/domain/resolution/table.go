package resolution

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Table is an ordered, immutable list of rules. The first rule whose
// matcher accepts an alert decides its actions; later rules are not
// consulted.
type Table struct {
	rules []Rule
}

// NewTable validates the rules and builds a table. Categories must be unique.
func NewTable(rules ...Rule) (*Table, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, dup := seen[r.Category]; dup {
			return nil, fmt.Errorf("rule %d: duplicate category %q", i, r.Category)
		}
		seen[r.Category] = struct{}{}
		r.Fixtures = append([]Fixture(nil), r.Fixtures...)
		out = append(out, r)
	}
	return &Table{rules: out}, nil
}

// MustNewTable is like NewTable but panics on invalid rules. It is meant
// for tables built from literals.
func MustNewTable(rules ...Rule) *Table {
	t, err := NewTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns a copy of the rules in evaluation order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Prepend returns a new table with the given rules evaluated before the
// existing ones.
func (t *Table) Prepend(rules ...Rule) (*Table, error) {
	return NewTable(append(append([]Rule(nil), rules...), t.rules...)...)
}

// WithFixtures returns a new table where the named category also recognizes
// the given fixtures, after its existing ones.
func (t *Table) WithFixtures(category string, fixtures ...Fixture) (*Table, error) {
	rules := t.Rules()
	for i := range rules {
		if rules[i].Category != category {
			continue
		}
		rules[i].Fixtures = append(append([]Fixture(nil), rules[i].Fixtures...), fixtures...)
		return NewTable(rules...)
	}
	return nil, fmt.Errorf("unknown category %q", category)
}

// Fingerprint hashes the table contents. Two tables with the same rules in
// the same order share a fingerprint.
func (t *Table) Fingerprint() uint64 {
	h := xxhash.New()
	write := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	writeTemplate := func(a ActionTemplate) {
		write(a.ActionType)
		write(a.Description)
		// fmt prints maps with sorted keys.
		write(fmt.Sprintf("%v|%v|%s|%s|%v", a.Params, a.Confidence, a.RiskLevel, a.EstimatedTime, a.RollbackPossible))
	}

	for _, r := range t.rules {
		write(r.Category)
		write(r.Match.String())
		for _, f := range r.Fixtures {
			write(f.Deployment)
			writeTemplate(f.Action)
		}
		if r.Generic != nil {
			for _, a := range r.Generic.Templates() {
				writeTemplate(a)
			}
		}
	}
	return h.Sum64()
}
