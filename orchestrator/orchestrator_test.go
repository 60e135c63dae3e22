package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-dev/stagehand/lock"
)

const (
	sha1 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	sha2 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestOrchestrator(f *fakePlatform) *Orchestrator {
	locks := lock.NewManager(f, "refs/heads/deployments/")
	return New(f, locks, Options{
		ConfigDir:    "envs",
		WorkflowPath: "wf.yml",
	}, slog.New(slog.DiscardHandler))
}

// seeds a fake with the workflow file present
func newSeededFake() *fakePlatform {
	f := newFakePlatform()
	f.addFile("wf.yml", []byte("jobs: {}"))
	return f
}

func TestPushCreatesQueuedUnit(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	checks := f.checksFor("staging")
	require.Len(t, checks, 1)
	assert.Equal(t, StatusQueued, checks[0].status)

	deps := f.activeDeployments("staging")
	require.Len(t, deps, 1)
	assert.Equal(t, []string{"deploy"}, deps[0].unit.Stages)
	assert.Empty(t, deps[0].unit.CompletedStages)
	assert.Empty(t, deps[0].unit.Artifacts)
	assert.Equal(t, TaskDeploy, deps[0].unit.Task)
	assert.Equal(t, checks[0].id, deps[0].unit.CheckRunID)

	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
}

func TestPushRedeliveryIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	assert.Len(t, f.checksFor("staging"), 1)
	assert.Len(t, f.activeDeployments("staging"), 1)
}

func TestPullRequestBranchFilter(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte("on:\n  pull_request:\n    branches: [master]\n"))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, PullRequestUpdated{SHA: sha1, Branch: "master"}))
	require.Len(t, f.activeDeployments("staging"), 1)

	require.NoError(t, o.Handle(ctx, PullRequestUpdated{SHA: sha2, Branch: "develop"}))
	assert.Len(t, f.activeDeployments("staging"), 1)
	for _, c := range f.checksFor("staging") {
		assert.NotEqual(t, sha2, c.sha, "no check expected for the non-matching branch")
	}
}

func TestTwoEnvironmentsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	f.addFile("envs/production.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	assert.Len(t, f.activeDeployments("staging"), 1)
	assert.Len(t, f.activeDeployments("production"), 1)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/production"])
}

func TestMissingWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFakePlatform() // no workflow file
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	checks := f.checksFor("staging")
	require.Len(t, checks, 1)
	assert.Equal(t, StatusCompleted, checks[0].status)
	assert.Equal(t, ConclusionFailure, checks[0].conclusion)
	assert.Contains(t, checks[0].output.Title, "Missing")

	assert.Empty(t, f.activeDeployments("staging"))
	assert.NotContains(t, f.refs, "refs/heads/deployments/staging")
}

func TestInvalidConfigIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	f.addFile("envs/broken.yml", []byte("id: \"has&ampersand\"\non: push"))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	// the healthy environment still deploys
	require.Len(t, f.activeDeployments("staging"), 1)

	checks := f.checksFor("broken")
	require.Len(t, checks, 1)
	assert.Equal(t, ConclusionFailure, checks[0].conclusion)
	assert.Contains(t, checks[0].output.Summary, "id")
}

func TestLockHeldFallsBackToReady(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	f.refs["refs/heads/deployments/staging"] = sha2
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	checks := f.checksFor("staging")
	require.Len(t, checks, 1)
	assert.Equal(t, StatusCompleted, checks[0].status)
	assert.Equal(t, ConclusionNeutral, checks[0].conclusion)
	require.Len(t, checks[0].actions, 1)
	assert.Equal(t, ActionDeploy, checks[0].actions[0].Identifier)

	assert.Empty(t, f.activeDeployments("staging"))
	// the holder keeps its lock
	assert.Equal(t, sha2, f.refs["refs/heads/deployments/staging"])
}

func TestManualTriggerOffersReadyThenDeploys(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte("on:\n  manual:\n"))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))

	checks := f.checksFor("staging")
	require.Len(t, checks, 1)
	assert.Equal(t, ConclusionNeutral, checks[0].conclusion)
	assert.Empty(t, f.activeDeployments("staging"))

	require.NoError(t, o.Handle(ctx, ActionRequested{
		SHA:         sha1,
		Environment: "staging",
		CheckRunID:  checks[0].id,
		Action:      ActionDeploy,
	}))

	deps := f.activeDeployments("staging")
	require.Len(t, deps, 1)
	assert.Equal(t, []string{"deploy"}, deps[0].unit.Stages)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
}

const stagedConfig = `
on: push
stages:
  deploy:
    actions:
      approve:
        name: Approve
        runs: approve
  approve:
    needs: deploy
`

func TestStageFlow(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(stagedConfig))
	o := newTestOrchestrator(f)

	// push: queued on the entry stage
	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	deps := f.activeDeployments("staging")
	require.Len(t, deps, 1)
	unit1 := deps[0].unit
	assert.Equal(t, []string{"deploy"}, unit1.Stages)

	// external runner picks it up
	f.addRun("deployments/staging", Run{ID: 101, SuiteID: 9001, HeadSHA: sha1, Status: StatusInProgress})
	require.NoError(t, o.Handle(ctx, RunStarted{SHA: sha1, Environment: "staging", SuiteID: 9001}))
	assert.Equal(t, StatusInProgress, f.checks[unit1.CheckRunID].status)

	// duplicate started delivery is a no-op
	require.NoError(t, o.Handle(ctx, RunStarted{SHA: sha1, Environment: "staging", SuiteID: 9001}))

	// deploy stage succeeds: incomplete, approve offered, lock kept
	f.setRunState("deployments/staging", 101, StatusCompleted, ConclusionSuccess)
	f.artifacts[101] = []Artifact{{ID: 1, Name: "build-log", URL: "https://example.com/a/1"}}
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9001, Conclusion: ConclusionSuccess}))

	check1 := f.checks[unit1.CheckRunID]
	assert.Equal(t, StatusCompleted, check1.status)
	assert.Equal(t, ConclusionActionRequired, check1.conclusion)
	require.Len(t, check1.actions, 1)
	assert.Equal(t, "approve", check1.actions[0].Identifier)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"], "lock must stay held")

	// operator fires approve: successor unit carries history forward
	require.NoError(t, o.Handle(ctx, ActionRequested{
		SHA:         sha1,
		Environment: "staging",
		CheckRunID:  unit1.CheckRunID,
		Action:      "approve",
	}))

	deps = f.activeDeployments("staging")
	require.Len(t, deps, 1)
	unit2 := deps[0].unit
	assert.Equal(t, []string{"approve"}, unit2.Stages)
	assert.Equal(t, []string{"deploy"}, unit2.CompletedStages)
	assert.Equal(t, "https://example.com/a/1", unit2.Artifacts["build-log"])
	assert.Equal(t, TaskDeploy+":approve", unit2.Task)
	assert.NotEqual(t, unit1.CheckRunID, unit2.CheckRunID)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])

	// approve stage succeeds: terminal success, lock released
	f.addRun("deployments/staging", Run{ID: 102, SuiteID: 9002, HeadSHA: sha1, Status: StatusCompleted, Conclusion: ConclusionSuccess})
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9002, Conclusion: ConclusionSuccess}))

	check2 := f.checks[unit2.CheckRunID]
	assert.Equal(t, StatusCompleted, check2.status)
	assert.Equal(t, ConclusionSuccess, check2.conclusion)
	assert.NotContains(t, f.refs, "refs/heads/deployments/staging")

	// duplicate completion delivery after release is still a no-op
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9002, Conclusion: ConclusionSuccess}))
}

func TestRunCompletedWrongSuiteDropped(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	unit := f.activeDeployments("staging")[0].unit

	f.addRun("deployments/staging", Run{ID: 101, SuiteID: 9001, HeadSHA: sha1, Status: StatusCompleted, Conclusion: ConclusionSuccess})
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 7777, Conclusion: ConclusionSuccess}))

	assert.Equal(t, StatusQueued, f.checks[unit.CheckRunID].status)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
}

func TestStaleActionRequestDropped(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(stagedConfig))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	unit := f.activeDeployments("staging")[0].unit

	require.NoError(t, o.Handle(ctx, ActionRequested{
		SHA:         sha1,
		Environment: "staging",
		CheckRunID:  unit.CheckRunID + 999,
		Action:      "approve",
	}))

	deps := f.activeDeployments("staging")
	require.Len(t, deps, 1)
	assert.Equal(t, unit.CheckRunID, deps[0].unit.CheckRunID)
}

func TestRerequestRestartsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	unit := f.activeDeployments("staging")[0].unit
	oldDepID := f.activeDeployments("staging")[0].id

	// run fails: terminal failure, lock released
	f.addRun("deployments/staging", Run{ID: 101, SuiteID: 9001, HeadSHA: sha1, Status: StatusCompleted, Conclusion: ConclusionFailure})
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9001, Conclusion: ConclusionFailure}))
	assert.Equal(t, ConclusionFailure, f.checks[unit.CheckRunID].conclusion)
	assert.NotContains(t, f.refs, "refs/heads/deployments/staging")

	// operator rerequests the failed check
	require.NoError(t, o.Handle(ctx, CheckRerequested{
		SHA:         sha1,
		Environment: "staging",
		CheckRunID:  unit.CheckRunID,
	}))

	deps := f.activeDeployments("staging")
	require.Len(t, deps, 1)
	assert.NotEqual(t, oldDepID, deps[0].id, "failed resource must be replaced")
	assert.Equal(t, unit.Stages, deps[0].unit.Stages)
	assert.Equal(t, StatusQueued, f.checks[deps[0].unit.CheckRunID].status)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
}

func TestRerequestOfSucceededCheckDropped(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	unit := f.activeDeployments("staging")[0].unit

	f.addRun("deployments/staging", Run{ID: 101, SuiteID: 9001, HeadSHA: sha1, Status: StatusCompleted, Conclusion: ConclusionSuccess})
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9001, Conclusion: ConclusionSuccess}))

	require.NoError(t, o.Handle(ctx, CheckRerequested{
		SHA:         sha1,
		Environment: "staging",
		CheckRunID:  unit.CheckRunID,
	}))

	assert.NotContains(t, f.refs, "refs/heads/deployments/staging")
	assert.Len(t, f.checksFor("staging"), 1)
}

func TestStatusReported(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	dep := f.activeDeployments("staging")[0]

	require.NoError(t, o.Handle(ctx, StatusReported{SHA: sha1, Environment: "staging", State: DeployStateSuccess}))

	assert.Equal(t, ConclusionSuccess, f.checks[dep.unit.CheckRunID].conclusion)
	assert.NotContains(t, f.refs, "refs/heads/deployments/staging")
	assert.Contains(t, f.statuses[dep.id], DeployStateSuccess)
}

func TestStatusReportedStaleShaDropped(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	unit := f.activeDeployments("staging")[0].unit

	require.NoError(t, o.Handle(ctx, StatusReported{SHA: sha2, Environment: "staging", State: DeployStateFailure}))

	assert.Equal(t, StatusQueued, f.checks[unit.CheckRunID].status)
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])
}

func TestDeployAfterReleaseStartsFresh(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	// sha1 deploys, sha2 arrives while the lock is held and gets a
	// ready check instead
	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha2, Branch: "main"}))

	var ready *fakeCheck
	for _, c := range f.checksFor("staging") {
		if c.sha == sha2 {
			ready = c
		}
	}
	require.NotNil(t, ready)
	require.Equal(t, ConclusionNeutral, ready.conclusion)

	// a deploy click while the environment is still busy is dropped
	require.NoError(t, o.Handle(ctx, ActionRequested{
		SHA:         sha2,
		Environment: "staging",
		CheckRunID:  ready.id,
		Action:      ActionDeploy,
	}))
	assert.Equal(t, sha1, f.refs["refs/heads/deployments/staging"])

	// sha1 finishes; its deployment resource stays behind after the
	// lock is released
	f.addRun("deployments/staging", Run{ID: 101, SuiteID: 9001, HeadSHA: sha1, Status: StatusCompleted, Conclusion: ConclusionSuccess})
	require.NoError(t, o.Handle(ctx, RunCompleted{SHA: sha1, Environment: "staging", SuiteID: 9001, Conclusion: ConclusionSuccess}))
	require.NotContains(t, f.refs, "refs/heads/deployments/staging")
	require.Len(t, f.activeDeployments("staging"), 1)

	// now the ready check's deploy action must get its turn
	require.NoError(t, o.Handle(ctx, ActionRequested{
		SHA:         sha2,
		Environment: "staging",
		CheckRunID:  ready.id,
		Action:      ActionDeploy,
	}))

	assert.Equal(t, sha2, f.refs["refs/heads/deployments/staging"])
	dep, err := f.LatestDeployment(ctx, "staging")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, sha2, dep.Unit.SHA)
	assert.Equal(t, []string{"deploy"}, dep.Unit.Stages)
}

// refFailPlatform makes ref creation fail like a flaky upstream.
type refFailPlatform struct {
	*fakePlatform
	createErr error
}

func (p *refFailPlatform) CreateRef(ctx context.Context, ref, sha string) error {
	if p.createErr != nil {
		return p.createErr
	}
	return p.fakePlatform.CreateRef(ctx, ref, sha)
}

func TestLockTransportErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))

	boom := errors.New("upstream unavailable")
	p := &refFailPlatform{fakePlatform: f, createErr: boom}
	locks := lock.NewManager(p, "refs/heads/deployments/")
	o := New(p, locks, Options{
		ConfigDir:    "envs",
		WorkflowPath: "wf.yml",
	}, slog.New(slog.DiscardHandler))

	err := o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"})
	require.ErrorIs(t, err, boom)

	// the failure must not be mistaken for a held lock: no ready check
	assert.Empty(t, f.checksFor("staging"))
}

func TestObserverSeesTransitions(t *testing.T) {
	ctx := context.Background()
	f := newSeededFake()
	f.addFile("envs/staging.yml", []byte(`on: push`))
	o := newTestOrchestrator(f)

	var states []State
	o.Observe(func(tr Transition) { states = append(states, tr.State) })

	require.NoError(t, o.Handle(ctx, CommitPushed{SHA: sha1, Branch: "main"}))
	require.NoError(t, o.Handle(ctx, StatusReported{SHA: sha1, Environment: "staging", State: DeployStateSuccess}))

	assert.Equal(t, []State{StateQueued, StateSuccess}, states)
}
