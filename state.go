package console

import (
	"fmt"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// State is a tree of named properties. Every stateful entity produces a
// State and accepts the same tree to restore itself. Encoding of the tree
// is up to the caller, YAML helpers are provided.
type State struct {
	Name       string            `yaml:"name"`
	Properties map[string]string `yaml:"properties,omitempty"`
	Children   []*State          `yaml:"children,omitempty"`
}

// NewState returns empty state node.
func NewState(name string) *State {
	return &State{Name: name}
}

// Set stores formatted value and returns the node to chain calls.
func (s *State) Set(key string, value any) *State {
	if s.Properties == nil {
		s.Properties = make(map[string]string)
	}
	switch v := value.(type) {
	case float64:
		s.Properties[key] = strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		s.Properties[key] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		s.Properties[key] = fmt.Sprint(value)
	}
	return s
}

// Get returns raw property value.
func (s *State) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.Properties[key]
	return v, ok
}

// String returns property or provided default.
func (s *State) String(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Float returns property or provided default if it's missing or invalid.
func (s *State) Float(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Int returns property or provided default if it's missing or invalid.
func (s *State) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Bool returns property or provided default if it's missing or invalid.
func (s *State) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Add appends children and returns the node.
func (s *State) Add(children ...*State) *State {
	for _, c := range children {
		if c != nil {
			s.Children = append(s.Children, c)
		}
	}
	return s
}

// Child returns first child with provided name.
func (s *State) Child(name string) *State {
	if s == nil {
		return nil
	}
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with provided name.
func (s *State) ChildrenNamed(name string) []*State {
	if s == nil {
		return nil
	}
	var result []*State
	for _, c := range s.Children {
		if c.Name == name {
			result = append(result, c)
		}
	}
	return result
}

// MarshalState encodes state tree as YAML.
func MarshalState(s *State) ([]byte, error) {
	return yaml.Marshal(s)
}

// UnmarshalState decodes YAML state tree.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &s, nil
}

// Diff returns unified diff between two state trees. Empty string means
// trees are equal.
func Diff(a, b *State) (string, error) {
	ab, err := MarshalState(a)
	if err != nil {
		return "", err
	}
	bb, err := MarshalState(b)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(ab)),
		B:        difflib.SplitLines(string(bb)),
		FromFile: a.Name,
		ToFile:   b.Name,
		Context:  1,
	})
}
