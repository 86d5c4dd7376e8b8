package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	celeval "github.com/SkySingh04/DreamOps-sub002/internal/adapter/outbound/cel"
	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

// namePattern matches server and rule names.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// sharedEvaluator is built on first use; the CEL environment is immutable.
var sharedEvaluator = sync.OnceValues(celeval.NewEvaluator)

// RegisterCustomValidators registers DreamOps-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("server_name", validateName); err != nil {
		return fmt.Errorf("failed to register server_name validator: %w", err)
	}
	if err := v.RegisterValidation("cel_expr", validateCELExpr); err != nil {
		return fmt.Errorf("failed to register cel_expr validator: %w", err)
	}
	return nil
}

// validateName accepts up to 64 alphanumerics, dots, hyphens and underscores.
func validateName(fl validator.FieldLevel) bool {
	return namePattern.MatchString(fl.Field().String())
}

// validateCELExpr accepts a condition that compiles to a boolean program.
func validateCELExpr(fl validator.FieldLevel) bool {
	eval, err := sharedEvaluator()
	if err != nil {
		return false
	}
	return eval.ValidateExpression(fl.Field().String()) == nil
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateServers(); err != nil {
		return err
	}
	if err := c.validateRules(); err != nil {
		return err
	}
	return c.validateFixtures()
}

// validateServers checks transport-specific fields and name uniqueness.
func (c *Config) validateServers() error {
	seen := make(map[string]struct{}, len(c.Servers))
	for i, s := range c.Servers {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("servers[%d]: duplicate name: %s", i, s.Name)
		}
		seen[s.Name] = struct{}{}

		switch s.Type {
		case "process":
			if s.Command == "" {
				return fmt.Errorf("servers[%d] (%s): command is required for process servers", i, s.Name)
			}
			if s.URL != "" {
				return fmt.Errorf("servers[%d] (%s): specify command OR url, not both", i, s.Name)
			}
		case "stream", "rest":
			if s.URL == "" {
				return fmt.Errorf("servers[%d] (%s): url is required for %s servers", i, s.Name, s.Type)
			}
			if s.Command != "" {
				return fmt.Errorf("servers[%d] (%s): specify command OR url, not both", i, s.Name)
			}
		}
		if len(s.Tools) > 0 && s.Type != "stream" {
			return fmt.Errorf("servers[%d] (%s): a static tools list is only supported for stream servers", i, s.Name)
		}
		if err := s.ToServer().Validate(); err != nil {
			return fmt.Errorf("servers[%d] (%s): %w", i, s.Name, err)
		}
	}
	return nil
}

// validateRules checks that config rule names are unique and do not shadow
// a built-in category, and that each action is complete.
func (c *Config) validateRules() error {
	builtin := builtinCategories()
	seen := make(map[string]struct{}, len(c.Resolver.Rules))
	for i, r := range c.Resolver.Rules {
		if slices.Contains(builtin, r.Name) {
			return fmt.Errorf("resolver.rules[%d]: name %s collides with a built-in category", i, r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("resolver.rules[%d]: duplicate name: %s", i, r.Name)
		}
		seen[r.Name] = struct{}{}

		if err := r.Action.template().Validate(); err != nil {
			return fmt.Errorf("resolver.rules[%d] (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

// validateFixtures ensures every fixture references a known category.
func (c *Config) validateFixtures() error {
	known := builtinCategories()
	for _, r := range c.Resolver.Rules {
		known = append(known, r.Name)
	}
	for i, f := range c.Resolver.Fixtures {
		if !slices.Contains(known, f.Category) {
			return fmt.Errorf("resolver.fixtures[%d]: references unknown category: %s", i, f.Category)
		}
	}
	return nil
}

func builtinCategories() []string {
	rules := resolution.DefaultRules()
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Category)
	}
	return out
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "server_name":
		return fmt.Sprintf("%s must be 1-64 characters of letters, digits, '.', '-' or '_'", field)
	case "cel_expr":
		return fmt.Sprintf("%s is not a valid boolean CEL expression: %s", field, celError(e.Value()))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

func celError(v any) string {
	expr, _ := v.(string)
	eval, err := sharedEvaluator()
	if err != nil {
		return err.Error()
	}
	if err := eval.ValidateExpression(expr); err != nil {
		return err.Error()
	}
	return "unknown error"
}
