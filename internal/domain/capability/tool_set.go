package capability

import "sort"

// ToolDescriptor describes a tool discovered on a capability server.
type ToolDescriptor struct {
	// Name is unique within one server session.
	Name string
	// Description is the human-readable description, when the server sends one.
	Description string
}

// MaxToolsPerServer bounds the number of tools a single server can register.
// Prevents memory DoS from a server advertising excessive tool counts.
const MaxToolsPerServer = 1000

// ToolSet is the set of tools discovered during one session. It is built
// once at connect and never mutated afterwards, so it needs no locking.
type ToolSet struct {
	tools map[string]ToolDescriptor
}

// NewToolSet builds a set from discovered descriptors. Duplicate names keep
// the first descriptor; entries without a name are dropped; the set is
// truncated to MaxToolsPerServer.
func NewToolSet(tools []ToolDescriptor) *ToolSet {
	s := &ToolSet{tools: make(map[string]ToolDescriptor, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		if len(s.tools) >= MaxToolsPerServer {
			break
		}
		if _, dup := s.tools[t.Name]; dup {
			continue
		}
		s.tools[t.Name] = t
	}
	return s
}

// Has reports whether the named tool was discovered. Safe on a nil set.
func (s *ToolSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.tools[name]
	return ok
}

// Len returns the number of tools. Safe on a nil set.
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

// List returns the descriptors sorted by name.
func (s *ToolSet) List() []ToolDescriptor {
	if s == nil {
		return nil
	}
	out := make([]ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the tool names sorted.
func (s *ToolSet) Names() []string {
	list := s.List()
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
	}
	return names
}
