package github

import (
	"encoding/json"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v66/github"

	"github.com/stagehand-dev/stagehand/orchestrator"
)

// DispatchAction is the repository_dispatch event type carrying an
// out-of-band status report.
const DispatchAction = "stagehand-status"

// Mapper translates parsed webhook payloads into orchestrator events.
// It needs the lock branch prefix to tell deployment branches apart
// from user branches: pushes to lock branches are the bot's own ref
// writes and runs on lock branches identify their environment.
type Mapper struct {
	// short branch prefix, e.g. "deployments/"
	LockBranchPrefix string
}

type statusPayload struct {
	Environment string `json:"environment"`
	SHA         string `json:"sha"`
	State       string `json:"state"`
}

// Map returns the orchestrator event for a payload, or false for
// webhooks the bot does not react to.
func (m Mapper) Map(payload any) (orchestrator.Event, bool) {
	switch e := payload.(type) {
	case *github.PushEvent:
		if e.GetDeleted() {
			return nil, false
		}
		refName := plumbing.ReferenceName(e.GetRef())
		if !refName.IsBranch() {
			return nil, false
		}
		branch := refName.Short()
		if strings.HasPrefix(branch, m.LockBranchPrefix) {
			// our own lock ref creation echoing back
			return nil, false
		}
		return orchestrator.CommitPushed{SHA: e.GetAfter(), Branch: branch}, true

	case *github.PullRequestEvent:
		switch e.GetAction() {
		case "opened", "reopened", "synchronize":
		default:
			return nil, false
		}
		return orchestrator.PullRequestUpdated{
			SHA:    e.GetPullRequest().GetHead().GetSHA(),
			Branch: e.GetPullRequest().GetBase().GetRef(),
		}, true

	case *github.CheckRunEvent:
		run := e.GetCheckRun()
		switch e.GetAction() {
		case "requested_action":
			return orchestrator.ActionRequested{
				SHA:         run.GetHeadSHA(),
				Environment: run.GetName(),
				CheckRunID:  run.GetID(),
				Action:      e.GetRequestedAction().Identifier,
			}, true
		case "rerequested":
			return orchestrator.CheckRerequested{
				SHA:         run.GetHeadSHA(),
				Environment: run.GetName(),
				CheckRunID:  run.GetID(),
			}, true
		}
		return nil, false

	case *github.WorkflowRunEvent:
		run := e.GetWorkflowRun()
		env, ok := strings.CutPrefix(run.GetHeadBranch(), m.LockBranchPrefix)
		if !ok {
			return nil, false
		}
		switch e.GetAction() {
		case "in_progress":
			return orchestrator.RunStarted{
				SHA:         run.GetHeadSHA(),
				Environment: env,
				SuiteID:     run.GetCheckSuiteID(),
			}, true
		case "completed":
			return orchestrator.RunCompleted{
				SHA:         run.GetHeadSHA(),
				Environment: env,
				SuiteID:     run.GetCheckSuiteID(),
				Conclusion:  run.GetConclusion(),
			}, true
		}
		return nil, false

	case *github.RepositoryDispatchEvent:
		if e.GetAction() != DispatchAction {
			return nil, false
		}
		var report statusPayload
		if err := json.Unmarshal(e.ClientPayload, &report); err != nil {
			return nil, false
		}
		if report.Environment == "" || report.State == "" {
			return nil, false
		}
		return orchestrator.StatusReported{
			SHA:         report.SHA,
			Environment: report.Environment,
			State:       report.State,
		}, true
	}

	return nil, false
}
