package orchestrator

import "maps"

// Unit is the runtime record of one deployment attempt: one per
// (environment, check-run). It is persisted as the opaque payload of
// the platform's deployment resource, so the bot itself stores
// nothing.
//
// Unit is a value. Transitions never mutate one in place; Advance
// returns the successor and the old unit stays valid for comparison.
type Unit struct {
	Environment     string            `json:"environment"`
	SHA             string            `json:"sha"`
	CheckRunID      int64             `json:"checkRunId"`
	Task            string            `json:"task"`
	Stages          []string          `json:"stages"`
	CompletedStages []string          `json:"completedStages"`
	Artifacts       map[string]string `json:"artifacts"`
}

// NewUnit builds a fresh unit with no history.
func NewUnit(env, sha string, checkRunID int64, task string, stages []string) Unit {
	return Unit{
		Environment: env,
		SHA:         sha,
		CheckRunID:  checkRunID,
		Task:        task,
		Stages:      stages,
		Artifacts:   map[string]string{},
	}
}

// Advance returns the successor unit: the current stages move into
// CompletedStages, next becomes the active stage set, and artifacts
// merge in by name, newer entries overwriting older ones. CheckRunID
// and Task are for the caller to fill in, since the successor runs
// under a fresh check.
func (u Unit) Advance(next []string, artifacts map[string]string) Unit {
	completed := make([]string, 0, len(u.CompletedStages)+len(u.Stages))
	seen := make(map[string]struct{})
	for _, s := range append(append([]string{}, u.CompletedStages...), u.Stages...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		completed = append(completed, s)
	}

	merged := make(map[string]string, len(u.Artifacts)+len(artifacts))
	maps.Copy(merged, u.Artifacts)
	maps.Copy(merged, artifacts)

	return Unit{
		Environment:     u.Environment,
		SHA:             u.SHA,
		Stages:          append([]string{}, next...),
		CompletedStages: completed,
		Artifacts:       merged,
	}
}
