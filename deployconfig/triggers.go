package deployconfig

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	TriggerKindPush        string = "push"
	TriggerKindPullRequest string = "pull_request"
	TriggerKindManual      string = "manual"
)

// triggerKinds is the closed set of accepted trigger kinds.
var triggerKinds = []string{TriggerKindPush, TriggerKindPullRequest, TriggerKindManual}

// Triggers is the `on:` clause of a config. Three shapes are accepted:
//
//	on: push
//	on: [push, pull_request]
//	on:
//	  push:
//	  pull_request:
//	    branches: [master]
//
// A rule without a branches filter matches any branch of its kind.
type Triggers struct {
	rules []triggerRule
}

type triggerRule struct {
	kind     string
	filtered bool
	branches []string
}

type branchFilter struct {
	Branches StringList `yaml:"branches"`
}

func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	t.rules = nil

	switch node.Kind {
	case yaml.ScalarNode:
		var kind string
		if err := node.Decode(&kind); err != nil {
			return err
		}
		t.rules = []triggerRule{{kind: kind}}
		return nil

	case yaml.SequenceNode:
		var kinds []string
		if err := node.Decode(&kinds); err != nil {
			return err
		}
		for _, kind := range kinds {
			t.rules = append(t.rules, triggerRule{kind: kind})
		}
		return nil

	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]

			var kind string
			if err := keyNode.Decode(&kind); err != nil {
				return fmt.Errorf("on: invalid trigger kind: %w", err)
			}

			rule := triggerRule{kind: kind}
			if valNode.Tag != "!!null" {
				var filter branchFilter
				if err := valNode.Decode(&filter); err != nil {
					return fmt.Errorf("on.%s: %w", kind, err)
				}
				if filter.Branches != nil {
					rule.filtered = true
					rule.branches = filter.Branches
				}
			}
			t.rules = append(t.rules, rule)
		}
		return nil
	}

	return fmt.Errorf("on: expected a string, list or mapping, got %s", kindName(node.Kind))
}

// Declares reports whether the kind appears in the trigger clause at
// all, regardless of branch filters.
func (t Triggers) Declares(kind string) bool {
	for _, r := range t.rules {
		if r.kind == kind {
			return true
		}
	}
	return false
}

// Matches decides whether an event of the given kind on the given
// branch selects this config. An undeclared kind never matches; a
// declared kind without a filter always does.
func (t Triggers) Matches(kind, branch string) bool {
	for _, r := range t.rules {
		if r.kind != kind {
			continue
		}
		if !r.filtered {
			return true
		}
		return slices.Contains(r.branches, branch)
	}
	return false
}

// Kinds returns the declared trigger kinds in declaration order.
func (t Triggers) Kinds() []string {
	kinds := make([]string, 0, len(t.rules))
	for _, r := range t.rules {
		kinds = append(kinds, r.kind)
	}
	return kinds
}

func (t Triggers) isZero() bool { return len(t.rules) == 0 }
