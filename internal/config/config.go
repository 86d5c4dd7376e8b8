// Package config provides configuration types for DreamOps.
//
// The schema covers the capability servers the core talks to, the
// config-defined resolver rules and fixtures, and the ambient logging and
// telemetry settings. Everything is file-based with environment overrides
// for scalar keys.
package config

import (
	"maps"
	"strings"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
)

// Config is the top-level DreamOps configuration.
type Config struct {
	// Log configures the structured logger.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Servers lists the capability servers used for tool calls and context
	// gathering. Optional: with no servers, alerts are resolved without context.
	Servers []ServerConfig `yaml:"servers" mapstructure:"servers" validate:"omitempty,dive"`

	// Resolver extends the built-in rule table.
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`

	// Telemetry selects the OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Metrics configures the Prometheus textfile output.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level. Defaults to "info".
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// ServerConfig configures one capability server.
type ServerConfig struct {
	// Name identifies the server in logs, metrics and reports. Must be unique.
	Name string `yaml:"name" mapstructure:"name" validate:"required,server_name"`

	// Type selects the transport: "process", "stream" or "rest".
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=process stream rest"`

	// Command is the executable to spawn (process only).
	Command string `yaml:"command" mapstructure:"command"`

	// Args are passed to Command.
	Args []string `yaml:"args" mapstructure:"args"`

	// Env holds extra environment variables for the subprocess.
	Env map[string]string `yaml:"env" mapstructure:"env"`

	// TokenEnv names the variable the subprocess reads its access token from.
	TokenEnv string `yaml:"token_env" mapstructure:"token_env"`

	// Token is exported as TokenEnv. When empty the variable is inherited.
	Token string `yaml:"token" mapstructure:"token"`

	// URL is the server base URL (stream and rest).
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// APIKey is sent as a bearer token (stream and rest).
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Tools is a static tool list for stream servers that do not enumerate
	// tools on connect.
	Tools []string `yaml:"tools" mapstructure:"tools" validate:"omitempty,dive,required"`

	// Enabled includes the server in context gathering. Defaults to true.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`

	// ContextCalls are issued for every alert while gathering context.
	ContextCalls []ContextCallConfig `yaml:"context_calls" mapstructure:"context_calls" validate:"omitempty,dive"`
}

// ContextCallConfig is one context-gathering call. String params may use
// {key} placeholders filled from alert metadata.
type ContextCallConfig struct {
	Tool   string         `yaml:"tool" mapstructure:"tool" validate:"required"`
	Params map[string]any `yaml:"params" mapstructure:"params"`
}

// ResolverConfig extends the built-in resolution table.
type ResolverConfig struct {
	// Rules are evaluated in order before the built-in categories.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`

	// Fixtures add catalogued deployments to existing categories.
	Fixtures []FixtureConfig `yaml:"fixtures" mapstructure:"fixtures" validate:"omitempty,dive"`

	// CacheSize bounds the per-process decision cache. Defaults to 1000.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// RuleConfig defines a config-driven resolution category.
type RuleConfig struct {
	// Name becomes the category reported for matching alerts.
	Name string `yaml:"name" mapstructure:"name" validate:"required,server_name"`

	// Condition is a CEL expression over the alert (description, text,
	// compact, metadata, deployment, namespace).
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required,cel_expr"`

	// Action is emitted when the condition matches.
	Action ActionConfig `yaml:"action" mapstructure:"action"`
}

// ActionConfig describes a remediation action. Description and string params
// may reference {deployment} and {namespace}.
type ActionConfig struct {
	Type          string         `yaml:"type" mapstructure:"type" validate:"required"`
	Description   string         `yaml:"description" mapstructure:"description"`
	Params        map[string]any `yaml:"params" mapstructure:"params"`
	Confidence    float64        `yaml:"confidence" mapstructure:"confidence" validate:"min=0,max=1"`
	Risk          string         `yaml:"risk" mapstructure:"risk" validate:"omitempty,oneof=low medium high"`
	EstimatedTime string         `yaml:"estimated_time" mapstructure:"estimated_time"`
	Rollback      bool           `yaml:"rollback" mapstructure:"rollback"`

	// RequireDeployment suppresses the action when the alert carries no
	// deployment_name.
	RequireDeployment bool `yaml:"require_deployment" mapstructure:"require_deployment"`
}

// FixtureConfig catalogues a deployment with a known remedy. Fixture actions
// are always emitted with confidence 1.0 and low risk.
type FixtureConfig struct {
	Category      string         `yaml:"category" mapstructure:"category" validate:"required"`
	Deployment    string         `yaml:"deployment" mapstructure:"deployment" validate:"required"`
	ActionType    string         `yaml:"action_type" mapstructure:"action_type" validate:"required"`
	Description   string         `yaml:"description" mapstructure:"description"`
	Params        map[string]any `yaml:"params" mapstructure:"params"`
	EstimatedTime string         `yaml:"estimated_time" mapstructure:"estimated_time"`
	Rollback      bool           `yaml:"rollback" mapstructure:"rollback"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	// Tracing is "none" (default) or "stdout".
	Tracing string `yaml:"tracing" mapstructure:"tracing" validate:"omitempty,oneof=none stdout"`
	// Metrics is "none" (default) or "stdout".
	Metrics string `yaml:"metrics" mapstructure:"metrics" validate:"omitempty,oneof=none stdout"`
}

// MetricsConfig configures Prometheus output.
type MetricsConfig struct {
	// Textfile is where the registry is written when a command exits, in
	// node-exporter textfile format. Empty disables it.
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Telemetry.Tracing == "" {
		c.Telemetry.Tracing = "none"
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = "none"
	}
	if c.Resolver.CacheSize == 0 {
		c.Resolver.CacheSize = 1000
	}
	for i := range c.Servers {
		if c.Servers[i].Enabled == nil {
			enabled := true
			c.Servers[i].Enabled = &enabled
		}
	}
	for i := range c.Resolver.Rules {
		if c.Resolver.Rules[i].Action.Risk == "" {
			c.Resolver.Rules[i].Action.Risk = "medium"
		}
	}
}

// IsEnabled reports whether the server takes part in context gathering.
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ToServer converts the entry to its domain form.
func (s ServerConfig) ToServer() *capability.Server {
	srv := &capability.Server{
		Name:     s.Name,
		Type:     capability.ServerType(s.Type),
		Enabled:  s.IsEnabled(),
		Command:  s.Command,
		Args:     append([]string(nil), s.Args...),
		Env:      envFromConfig(s.Env),
		TokenEnv: s.TokenEnv,
		Token:    s.Token,
		URL:      s.URL,
		APIKey:   s.APIKey,
		Tools:    append([]string(nil), s.Tools...),
	}
	for _, call := range s.ContextCalls {
		srv.ContextCalls = append(srv.ContextCalls, capability.ContextCall{
			Tool:   call.Tool,
			Params: maps.Clone(call.Params),
		})
	}
	return srv
}

// envFromConfig upper-cases variable names; viper folds map keys to lower case.
func envFromConfig(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// ToServers converts every configured server, in file order.
func (c *Config) ToServers() []*capability.Server {
	out := make([]*capability.Server, 0, len(c.Servers))
	for _, s := range c.Servers {
		out = append(out, s.ToServer())
	}
	return out
}

// Server returns the configured server with the given name.
func (c *Config) Server(name string) (*capability.Server, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s.ToServer(), true
		}
	}
	return nil, false
}
