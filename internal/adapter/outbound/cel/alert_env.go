package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// NewAlertEnvironment creates the CEL environment for resolver rule
// conditions. It declares:
//   - description: the alert description as received
//   - text: the lower-cased description
//   - compact: text without whitespace, hyphens and underscores, so
//     compact.contains("imagepull") matches "Image Pull" and "image_pull"
//   - metadata: the alert metadata map
//   - deployment, namespace: the metadata fields the built-in rules read,
//     namespace defaulting to "default"
//   - glob(pattern, value): shell pattern match
func NewAlertEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("description", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("compact", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("deployment", cel.StringType),
		cel.Variable("namespace", cel.StringType),

		// glob: Usage: glob("payments-*", deployment)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// BuildAlertActivation creates a CEL activation map from a normalized signal.
func BuildAlertActivation(s resolution.Signal) map[string]any {
	metadata := s.Alert.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"description": s.Alert.Description,
		"text":        s.Text,
		"compact":     s.Compact,
		"metadata":    metadata,
		"deployment":  s.Deployment(),
		"namespace":   s.Namespace(),
	}
}
