package deployconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StageMap and ActionMap are yaml mappings that remember declaration
// order. Order matters: entry stages start as one batch in declaration
// order, and duplicate action ids across stages resolve to the
// first-declared one.

type StageMap struct {
	ids    []string
	stages map[string]Stage
}

func (m *StageMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("stages: expected a mapping, got %s", kindName(node.Kind))
	}

	m.ids = nil
	m.stages = make(map[string]Stage)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var id string
		if err := keyNode.Decode(&id); err != nil {
			return fmt.Errorf("stages: invalid stage id: %w", err)
		}

		var stage Stage
		if valNode.Kind != 0 && valNode.Tag != "!!null" {
			if err := valNode.Decode(&stage); err != nil {
				return fmt.Errorf("stage %q: %w", id, err)
			}
		}

		if _, dup := m.stages[id]; dup {
			return fmt.Errorf("stages: duplicate stage %q", id)
		}
		m.ids = append(m.ids, id)
		m.stages[id] = stage
	}

	return nil
}

func (m StageMap) Len() int { return len(m.ids) }

// IDs returns stage ids in declaration order.
func (m StageMap) IDs() []string { return m.ids }

func (m StageMap) Get(id string) (Stage, bool) {
	s, ok := m.stages[id]
	return s, ok
}

func (m StageMap) Has(id string) bool {
	_, ok := m.stages[id]
	return ok
}

type ActionMap struct {
	ids     []string
	actions map[string]Action
}

func (m *ActionMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("actions: expected a mapping, got %s", kindName(node.Kind))
	}

	m.ids = nil
	m.actions = make(map[string]Action)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var id string
		if err := keyNode.Decode(&id); err != nil {
			return fmt.Errorf("actions: invalid action id: %w", err)
		}

		var action Action
		if err := valNode.Decode(&action); err != nil {
			return fmt.Errorf("action %q: %w", id, err)
		}

		if _, dup := m.actions[id]; dup {
			return fmt.Errorf("actions: duplicate action %q", id)
		}
		m.ids = append(m.ids, id)
		m.actions[id] = action
	}

	return nil
}

func (m ActionMap) Len() int { return len(m.ids) }

func (m ActionMap) IDs() []string { return m.ids }

func (m ActionMap) Get(id string) (Action, bool) {
	a, ok := m.actions[id]
	return a, ok
}

// UnmarshalYAML accepts a single string or a sequence of strings.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*s = many
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings, got %s", kindName(node.Kind))
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
