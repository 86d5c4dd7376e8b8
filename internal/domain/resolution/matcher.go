package resolution

import "strings"

// Matcher decides whether a rule applies to an alert. String returns a
// stable description used in listings and fingerprints.
type Matcher interface {
	Match(s Signal) bool
	String() string
}

// AnyOf matches when at least one keyword occurs in the description.
type AnyOf []string

func (m AnyOf) Match(s Signal) bool {
	for _, kw := range m {
		if s.Contains(kw) {
			return true
		}
	}
	return false
}

func (m AnyOf) String() string {
	return "any(" + strings.Join(m, ",") + ")"
}

// AllOf matches when every keyword occurs in the description.
type AllOf []string

func (m AllOf) Match(s Signal) bool {
	if len(m) == 0 {
		return false
	}
	for _, kw := range m {
		if !s.Contains(kw) {
			return false
		}
	}
	return true
}

func (m AllOf) String() string {
	return "all(" + strings.Join(m, ",") + ")"
}
