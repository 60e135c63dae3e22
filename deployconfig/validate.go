package deployconfig

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// ValidationError reports a config that is structurally well-formed
// yaml but violates the descriptor rules. It is terminal for the file
// it names: the orchestrator surfaces it verbatim and never retries.
type ValidationError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Reason)
}

var idRe = regexp.MustCompile(`^[a-zA-Z0-9-]{2,30}$`)

const (
	maxNameLen        = 100
	maxDescriptionLen = 500
)

// validate runs after structural decode and defaulting. Shape checks
// come first, then the stage graph checks, so a graph error is always
// reported against an otherwise sane config.
func (c *Config) validate() error {
	if !idRe.MatchString(c.ID) {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q must match %s", c.ID, idRe.String())}
	}
	if utf8.RuneCountInString(c.Name) > maxNameLen {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("longer than %d characters", maxNameLen)}
	}
	if utf8.RuneCountInString(c.Description) > maxDescriptionLen {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("longer than %d characters", maxDescriptionLen)}
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not an absolute http(s) url", c.URL)}
		}
	}

	if c.On.isZero() {
		return &ValidationError{Field: "on", Reason: "at least one trigger is required"}
	}
	for _, kind := range c.On.Kinds() {
		if !slices.Contains(triggerKinds, kind) {
			return &ValidationError{
				Field:  "on",
				Reason: fmt.Sprintf("unknown trigger %q, expected one of: %s", kind, strings.Join(triggerKinds, ", ")),
			}
		}
	}

	if c.Stages.Len() == 0 {
		return &ValidationError{Field: "stages", Reason: "at least one stage is required"}
	}

	return c.validateStages()
}

func (c *Config) validateStages() error {
	adjacency := make(map[string][]string, c.Stages.Len())
	for _, id := range c.Stages.IDs() {
		stage, _ := c.Stages.Get(id)
		adjacency[id] = stage.Needs
	}

	for _, id := range c.Stages.IDs() {
		stage, _ := c.Stages.Get(id)

		for _, parent := range stage.Needs {
			field := fmt.Sprintf("stages.%s.needs", id)
			if parent == id {
				return &ValidationError{Field: field, Reason: "stage cannot depend on itself"}
			}
			if !c.Stages.Has(parent) {
				return &ValidationError{Field: field, Reason: fmt.Sprintf("undeclared stage %q", parent)}
			}
			if cycle := findCycle(adjacency, parent); cycle != nil {
				return &ValidationError{
					Field:  field,
					Reason: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
				}
			}
		}

		for _, aid := range stage.Actions.IDs() {
			action, _ := stage.Actions.Get(aid)
			field := fmt.Sprintf("stages.%s.actions.%s", id, aid)
			if action.Name == "" {
				return &ValidationError{Field: field, Reason: "name is required"}
			}
			if len(action.Runs) == 0 {
				return &ValidationError{Field: field, Reason: "runs is required"}
			}
			for _, target := range action.Runs {
				// a stage re-running itself through its own action is fine
				if !c.Stages.Has(target) {
					return &ValidationError{Field: field, Reason: fmt.Sprintf("runs undeclared stage %q", target)}
				}
			}
		}
	}

	return nil
}

// findCycle walks the needs relation from root and returns the first
// path that arrives back at root, inclusive on both ends, or nil.
func findCycle(adjacency map[string][]string, root string) []string {
	visited := make(map[string]bool)

	var walk func(node string, path []string) []string
	walk = func(node string, path []string) []string {
		path = append(path, node)
		for _, dep := range adjacency[node] {
			if dep == root {
				return append(path, root)
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if cycle := walk(dep, path); cycle != nil {
				return cycle
			}
		}
		return nil
	}

	return walk(root, nil)
}
