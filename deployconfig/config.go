package deployconfig

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// - every deployment environment is described by one file under the
//   config directory, e.g. .stagehand/environments/staging.yml
// - the file is versioned with the repository tree, so a config is
//   always read at a specific commit and never cached across commits
// - a config carries trigger rules plus a dependency graph of stages,
//   each stage optionally offering follow-up actions

type (
	// Config is the descriptor for a single deployment environment.
	Config struct {
		ID          string   `yaml:"id"`
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		URL         string   `yaml:"url"`
		On          Triggers `yaml:"on"`
		Stages      StageMap `yaml:"stages"`
	}

	// Stage is a unit of work within an environment's deployment.
	Stage struct {
		Name        string     `yaml:"name"`
		Description string     `yaml:"description"`
		Needs       StringList `yaml:"needs"`
		Actions     ActionMap  `yaml:"actions"`
	}

	// Action is an offerable next step attached to a stage. Firing it
	// activates the stages named in Runs; naming the enclosing stage is
	// allowed and re-runs it.
	Action struct {
		Name        string     `yaml:"name"`
		Description string     `yaml:"description"`
		Runs        StringList `yaml:"runs"`
	}

	StringList []string
)

// Parse decodes one environment descriptor. Filename-derived defaults
// (id, name, description, the implicit deploy stage) are applied before
// validation, so a minimal file like `on: push` is a complete config.
func Parse(filename string, raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &ValidationError{Path: filename, Field: "yaml", Reason: err.Error()}
	}

	if cfg.ID == "" {
		cfg.ID = Stem(filename)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.Description == "" {
		cfg.Description = fmt.Sprintf("Deployment of the %s environment", cfg.Name)
	}
	if cfg.Stages.Len() == 0 {
		cfg.Stages = defaultStages()
	}

	if err := cfg.validate(); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			verr.Path = filename
		}
		return nil, err
	}

	return &cfg, nil
}

// Stem strips the directory and the yaml extension from a config
// filename, yielding the default environment id.
func Stem(filename string) string {
	base := path.Base(filename)
	base = strings.TrimSuffix(base, path.Ext(base))
	return base
}

// EntryStages returns the ids of stages with no dependencies, in
// declaration order. These are the stages a fresh deployment starts
// with, all at once.
func (c *Config) EntryStages() []string {
	var entry []string
	for _, id := range c.Stages.IDs() {
		stage, _ := c.Stages.Get(id)
		if len(stage.Needs) == 0 {
			entry = append(entry, id)
		}
	}
	return entry
}

// ActionRef is an action offered to the operator, resolved to its
// declaring stage.
type ActionRef struct {
	ID          string
	Name        string
	Description string
}

// OfferedActions collects the actions declared by the given stages.
// When two stages declare the same action id, the first declaration
// wins and later ones are ignored.
func (c *Config) OfferedActions(stageIDs []string) []ActionRef {
	var refs []ActionRef
	seen := make(map[string]struct{})
	for _, sid := range stageIDs {
		stage, ok := c.Stages.Get(sid)
		if !ok {
			continue
		}
		for _, aid := range stage.Actions.IDs() {
			if _, dup := seen[aid]; dup {
				continue
			}
			seen[aid] = struct{}{}
			action, _ := stage.Actions.Get(aid)
			refs = append(refs, ActionRef{
				ID:          aid,
				Name:        action.Name,
				Description: action.Description,
			})
		}
	}
	return refs
}

// NextStages resolves an action id against the given stages and returns
// the union of the matching actions' runs targets, deduplicated in
// declaration order. An empty result means the action is unknown to
// every listed stage.
func (c *Config) NextStages(stageIDs []string, actionID string) []string {
	var next []string
	seen := make(map[string]struct{})
	for _, sid := range stageIDs {
		stage, ok := c.Stages.Get(sid)
		if !ok {
			continue
		}
		action, ok := stage.Actions.Get(actionID)
		if !ok {
			continue
		}
		for _, target := range action.Runs {
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			next = append(next, target)
		}
	}
	return next
}

func defaultStages() StageMap {
	return StageMap{
		ids:    []string{DefaultStage},
		stages: map[string]Stage{DefaultStage: {}},
	}
}

// DefaultStage is the implicit single stage of a config that declares
// none.
const DefaultStage = "deploy"
