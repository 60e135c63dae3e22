package orchestrator

import (
	"context"

	"github.com/stagehand-dev/stagehand/deployconfig"
	"github.com/stagehand-dev/stagehand/lock"
)

// Check and run states, in the vocabulary of the hosting platform's
// checks API.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	ConclusionSuccess        = "success"
	ConclusionFailure        = "failure"
	ConclusionNeutral        = "neutral"
	ConclusionActionRequired = "action_required"
)

// Deployment status states.
const (
	DeployStateQueued     = "queued"
	DeployStateInProgress = "in_progress"
	DeployStateSuccess    = "success"
	DeployStateFailure    = "failure"
)

type CheckRun struct {
	ID         int64
	Status     string
	Conclusion string
}

// CheckAction is a button the platform renders on a check run.
type CheckAction struct {
	Label       string
	Description string
	Identifier  string
}

type CheckOutput struct {
	Title   string
	Summary string
}

// CheckUpdate is a partial mutation of a check run. Zero fields are
// left untouched by the binding.
type CheckUpdate struct {
	Status     string
	Conclusion string
	Actions    []CheckAction
	Output     *CheckOutput
}

type Checks interface {
	CheckSuiteExists(ctx context.Context, sha string) (bool, error)
	CreateCheckSuite(ctx context.Context, sha string) error
	CreateCheckRun(ctx context.Context, env, sha string) (int64, error)
	GetCheckRun(ctx context.Context, id int64) (CheckRun, error)
	UpdateCheckRun(ctx context.Context, id int64, update CheckUpdate) error
}

// Deployment pairs a platform deployment resource id with the unit
// stored in its payload.
type Deployment struct {
	ID   int64
	Unit Unit
}

type Deployments interface {
	// CreateDeployment stores unit as the resource payload. ref is the
	// branch the external runner executes on.
	CreateDeployment(ctx context.Context, env, ref, task string, unit Unit) (int64, error)
	CreateDeploymentStatus(ctx context.Context, id int64, state, description, url string) error
	DeleteDeployment(ctx context.Context, id int64) error
	// LatestDeployment returns the most recent deployment resource for
	// env, or nil when there is none.
	LatestDeployment(ctx context.Context, env string) (*Deployment, error)
}

// Run is one execution of the external runner.
type Run struct {
	ID         int64
	SuiteID    int64
	HeadSHA    string
	Status     string
	Conclusion string
	URL        string
}

type Artifact struct {
	ID   int64
	Name string
	URL  string
}

type Runs interface {
	// ListRuns returns runs for a branch and triggering event kind,
	// most recent first.
	ListRuns(ctx context.Context, branch, event string) ([]Run, error)
	ListArtifacts(ctx context.Context, runID int64) ([]Artifact, error)
}

// Platform is everything the orchestrator needs from the hosting
// platform. forge/github binds it to a REST API; tests use an
// in-memory fake.
type Platform interface {
	deployconfig.Source
	lock.RefStore
	Checks
	Deployments
	Runs
}
