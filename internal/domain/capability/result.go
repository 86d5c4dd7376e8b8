package capability

import (
	"maps"
	"time"
)

// Record is one opaque piece of data returned by a tool.
type Record map[string]any

// ToolCallResult is the uniform outcome of one tool call. A successful result
// never carries an error; a failed one always does. Build it with
// NewSuccessResult or NewFailureResult and treat it as read-only.
type ToolCallResult struct {
	Success   bool           `json:"success" yaml:"success"`
	Content   []Record       `json:"content" yaml:"content"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	Kind      ErrorKind      `json:"kind,omitempty" yaml:"kind,omitempty"`
	ToolName  string         `json:"tool_name" yaml:"tool_name"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// NewSuccessResult builds a successful result. A nil content becomes empty so
// consumers can always range over it.
func NewSuccessResult(tool string, params map[string]any, content []Record, at time.Time) *ToolCallResult {
	if content == nil {
		content = []Record{}
	}
	return &ToolCallResult{
		Success:   true,
		Content:   content,
		ToolName:  tool,
		Params:    maps.Clone(params),
		Timestamp: at,
	}
}

// NewFailureResult builds a failed result. An empty message is replaced with
// a generic one derived from the kind.
func NewFailureResult(tool string, params map[string]any, kind ErrorKind, msg string, at time.Time) *ToolCallResult {
	if msg == "" {
		msg = "tool call failed"
		if kind != KindNone {
			msg = string(kind) + " failure"
		}
	}
	if kind == KindNone {
		kind = KindConnection
	}
	return &ToolCallResult{
		Success:   false,
		Content:   []Record{},
		Error:     msg,
		Kind:      kind,
		ToolName:  tool,
		Params:    maps.Clone(params),
		Timestamp: at,
	}
}

// Text joins the text fields of all content records, one per line.
func (r *ToolCallResult) Text() string {
	return joinText(r.Content)
}
