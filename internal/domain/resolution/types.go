// Package resolution contains the deterministic remediation engine: alert
// signals, resolution actions, and the ordered rule table that maps one to
// the other.
package resolution

import (
	"fmt"
	"strings"
	"unicode"
)

// RiskLevel grades how disruptive an action is. Low-risk actions are
// considered safe to auto-execute by the executor's policy.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// AlertSignal is the read-only input to the resolver.
type AlertSignal struct {
	Description string         `json:"description" yaml:"description"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ResolutionAction is one proposed remediation step. Actions are created by
// the resolver and handed to an external executor.
type ResolutionAction struct {
	ActionType       string         `json:"action_type" yaml:"action_type"`
	Description      string         `json:"description" yaml:"description"`
	Params           map[string]any `json:"params" yaml:"params"`
	Confidence       float64        `json:"confidence" yaml:"confidence"`
	RiskLevel        RiskLevel      `json:"risk_level" yaml:"risk_level"`
	EstimatedTime    string         `json:"estimated_time" yaml:"estimated_time"`
	RollbackPossible bool           `json:"rollback_possible" yaml:"rollback_possible"`
}

// Metadata keys read by the built-in rules.
const (
	MetaDeployment = "deployment_name"
	MetaNamespace  = "namespace"
)

// DefaultNamespace is used when the alert carries no namespace.
const DefaultNamespace = "default"

// Signal is an alert prepared for matching. Text is the lower-cased
// description; Compact additionally drops whitespace, hyphens and
// underscores so that "Image Pull" and "image_pull" both contain "imagepull".
type Signal struct {
	Alert   AlertSignal
	Text    string
	Compact string
}

// NewSignal normalizes an alert for matching.
func NewSignal(a AlertSignal) Signal {
	text := strings.ToLower(a.Description)
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return r
	}, text)
	return Signal{Alert: a, Text: text, Compact: compact}
}

// Contains reports whether the keyword occurs in the normalized description.
func (s Signal) Contains(keyword string) bool {
	kw := strings.ToLower(keyword)
	if kw == "" {
		return false
	}
	return strings.Contains(s.Text, kw) || strings.Contains(s.Compact, kw)
}

// Meta returns a metadata value as a trimmed string, or "" when absent.
func (s Signal) Meta(key string) string {
	v, ok := s.Alert.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Deployment returns the deployment named in the metadata.
func (s Signal) Deployment() string {
	return s.Meta(MetaDeployment)
}

// Namespace returns the namespace named in the metadata, or DefaultNamespace.
func (s Signal) Namespace() string {
	if ns := s.Meta(MetaNamespace); ns != "" {
		return ns
	}
	return DefaultNamespace
}
