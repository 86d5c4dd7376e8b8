// Package capability contains domain types for capability servers: their
// connection parameters, the tools they expose, and the results of calling them.
package capability

import (
	"fmt"
	"net/url"
	"regexp"
)

// ServerType identifies the wire transport used to reach a capability server.
type ServerType string

const (
	// ServerTypeProcess is a subprocess speaking line-delimited JSON-RPC on stdio.
	ServerTypeProcess ServerType = "process"
	// ServerTypeStream is an HTTP endpoint answering with a server-sent event stream.
	ServerTypeStream ServerType = "stream"
	// ServerTypeREST is an HTTP endpoint with plain list and call routes.
	ServerTypeREST ServerType = "rest"
)

// ConnectionState is the lifecycle state of a capability client.
type ConnectionState string

const (
	// StateDisconnected means no transport is live.
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting means a transport is being opened and its tools discovered.
	StateConnecting ConnectionState = "connecting"
	// StateConnected means the transport is open and the tool set is populated.
	StateConnected ConnectionState = "connected"
)

// namePattern allows alphanumeric, hyphens, underscores and dots.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// nameMaxLength is the maximum allowed length for a server name.
const nameMaxLength = 64

// ContextCall is a tool call issued against a server while gathering
// context for an alert. String params may hold {key} placeholders that are
// filled from the alert metadata.
type ContextCall struct {
	Tool   string
	Params map[string]any
}

// Server holds the connection parameters of one capability server. The
// fields are opaque to the client; they are handed to the transport at
// construction.
type Server struct {
	// Name identifies the server in logs, metrics and reports.
	Name string
	// Type selects the transport variant.
	Type ServerType
	// Enabled excludes the server from context gathering when false.
	Enabled bool

	// Command is the executable path (process only).
	Command string
	// Args are the command-line arguments (process only).
	Args []string
	// Env holds extra environment variables for the subprocess.
	Env map[string]string
	// TokenEnv is the name of the variable carrying the access token.
	TokenEnv string
	// Token is the access token value. When empty the variable is inherited.
	Token string

	// URL is the base URL (stream and rest).
	URL string
	// APIKey is sent as a bearer token (stream and rest).
	APIKey string
	// Tools is a static capability list for servers that do not enumerate
	// tools on connect (stream only).
	Tools []string

	// ContextCalls are issued for every alert during context gathering.
	ContextCalls []ContextCall
}

// Validate checks that the server has a usable configuration.
// Returns nil if valid, or an error describing the first validation failure.
func (s *Server) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Name) > nameMaxLength {
		return fmt.Errorf("name must be %d characters or less", nameMaxLength)
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("name contains invalid characters (allowed: alphanumeric, dots, hyphens, underscores)")
	}

	switch s.Type {
	case ServerTypeProcess:
		if s.Command == "" {
			return fmt.Errorf("command is required for process server")
		}
	case ServerTypeStream, ServerTypeREST:
		if s.URL == "" {
			return fmt.Errorf("url is required for %s server", s.Type)
		}
		parsed, err := url.Parse(s.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("url is not a valid URL")
		}
	default:
		return fmt.Errorf("type must be %q, %q or %q", ServerTypeProcess, ServerTypeStream, ServerTypeREST)
	}

	for i, call := range s.ContextCalls {
		if call.Tool == "" {
			return fmt.Errorf("context_calls[%d]: tool is required", i)
		}
	}
	return nil
}
