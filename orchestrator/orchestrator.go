// Package orchestrator is the deployment state machine. It consumes
// typed events, decides what state each (environment, commit) pair is
// in, and expresses every decision as idempotent calls against the
// Platform interfaces. All durable state lives on the platform: the
// lock ref, the deployment resource payload, and check-run status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/stagehand-dev/stagehand/deployconfig"
	"github.com/stagehand-dev/stagehand/lock"
)

// ActionDeploy is the well-known identifier of the fresh-start action
// offered on ready checks. Stage actions keep their declared ids and
// run under task "deploy:<action>".
const ActionDeploy = "deploy"

const TaskDeploy = "deploy"

type Options struct {
	// ConfigDir holds the per-environment descriptors at each commit.
	ConfigDir string

	// WorkflowPath is the external runner's workflow file. Its absence
	// at a commit makes every environment terminal with
	// "missing workflow".
	WorkflowPath string

	// RunEvent is the event kind the external runner is triggered by;
	// runs are correlated by (lock branch, RunEvent).
	RunEvent string
}

type Orchestrator struct {
	platform Platform
	locks    *lock.Manager
	opts     Options
	l        *slog.Logger
	observer func(Transition)
}

func New(platform Platform, locks *lock.Manager, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.RunEvent == "" {
		opts.RunEvent = "deployment"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		platform: platform,
		locks:    locks,
		opts:     opts,
		l:        logger.With("component", "orchestrator"),
	}
}

// Observe registers a callback invoked on every recorded transition.
// Used by the server to feed the live event stream; nil is fine.
func (o *Orchestrator) Observe(fn func(Transition)) {
	o.observer = fn
}

// Handle dispatches one inbound event. A nil return means the event
// was fully applied or deliberately dropped as stale; only transport
// failures propagate, for the caller to log and leave to retry.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case CommitPushed:
		return o.handleCommit(ctx, ev.SHA, ev.Branch, deployconfig.TriggerKindPush)
	case PullRequestUpdated:
		return o.handleCommit(ctx, ev.SHA, ev.Branch, deployconfig.TriggerKindPullRequest)
	case ActionRequested:
		return o.handleActionRequested(ctx, ev)
	case CheckRerequested:
		return o.handleRerequested(ctx, ev)
	case RunStarted:
		return o.handleRunStarted(ctx, ev)
	case RunCompleted:
		return o.handleRunCompleted(ctx, ev)
	case StatusReported:
		return o.handleStatusReported(ctx, ev)
	}
	return fmt.Errorf("unhandled event type %T", ev)
}

// handleCommit processes push and pull-request deliveries. The
// check-suite probe makes redelivery a no-op: one suite per commit,
// and only its creator proceeds to per-environment decisions.
func (o *Orchestrator) handleCommit(ctx context.Context, sha, branch, kind string) error {
	l := o.l.With("sha", short(sha), "branch", branch, "kind", kind)

	exists, err := o.platform.CheckSuiteExists(ctx, sha)
	if err != nil {
		return fmt.Errorf("probing check suite for %s: %w", sha, err)
	}
	if exists {
		l.Debug("check suite exists, dropping redelivery")
		return nil
	}
	if err := o.platform.CreateCheckSuite(ctx, sha); err != nil {
		return fmt.Errorf("creating check suite for %s: %w", sha, err)
	}

	listing, err := deployconfig.List(ctx, o.platform, o.opts.ConfigDir, sha)
	if err != nil {
		return err
	}
	if len(listing) == 0 {
		l.Debug("no environments configured")
		return nil
	}

	workflowPresent, err := o.workflowPresent(ctx, sha)
	if err != nil {
		return err
	}

	for _, env := range slices.Sorted(maps.Keys(listing)) {
		entry := listing[env]

		switch {
		case !workflowPresent:
			err = o.finishFresh(ctx, env, sha, StateMissingWorkflow,
				"Missing deployment workflow",
				fmt.Sprintf("No workflow found at `%s` for this commit.", o.opts.WorkflowPath))

		case entry.Err != nil:
			err = o.finishFresh(ctx, env, sha, StateInvalid,
				"Invalid environment configuration", entry.Err.Error())

		case entry.Config.On.Matches(kind, branch):
			err = o.startDeployment(ctx, entry.Config, sha, TaskDeploy)

		case kind == deployconfig.TriggerKindPush && entry.Config.On.Declares(deployconfig.TriggerKindManual):
			err = o.emitReady(ctx, entry.Config, sha)
		}

		if err != nil {
			return fmt.Errorf("environment %s: %w", env, err)
		}
	}

	return nil
}

// startDeployment acquires the lock and creates a queued unit on the
// entry stage set. A held lock is not an error here: the commit gets a
// ready check instead, so an operator can deploy it manually once the
// environment frees up.
func (o *Orchestrator) startDeployment(ctx context.Context, cfg *deployconfig.Config, sha, task string) error {
	env := cfg.ID

	if err := o.locks.Acquire(ctx, env, sha); err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			o.l.Info("environment busy, offering manual deploy", "env", env, "sha", short(sha))
			return o.emitReady(ctx, cfg, sha)
		}
		return err
	}

	return o.createUnit(ctx, cfg, sha, task, cfg.EntryStages(), nil, nil)
}

// createUnit records a queued deployment: check run, deployment
// resource carrying the unit payload, queued check state. The lock
// must already be held by sha.
func (o *Orchestrator) createUnit(ctx context.Context, cfg *deployconfig.Config, sha, task string, stages, completed []string, artifacts map[string]string) error {
	env := cfg.ID

	checkID, err := o.platform.CreateCheckRun(ctx, env, sha)
	if err != nil {
		return fmt.Errorf("creating check run: %w", err)
	}

	unit := NewUnit(env, sha, checkID, task, stages)
	unit.CompletedStages = completed
	if artifacts != nil {
		unit.Artifacts = artifacts
	}

	depID, err := o.platform.CreateDeployment(ctx, env, o.locks.Branch(env), task, unit)
	if err != nil {
		return fmt.Errorf("creating deployment: %w", err)
	}
	if err := o.platform.CreateDeploymentStatus(ctx, depID, DeployStateQueued, "Deployment queued", cfg.URL); err != nil {
		return fmt.Errorf("creating deployment status: %w", err)
	}

	err = o.platform.UpdateCheckRun(ctx, checkID, CheckUpdate{
		Status: StatusQueued,
		Output: &CheckOutput{
			Title:   "Deployment queued",
			Summary: fmt.Sprintf("Running stages: %s", strings.Join(stages, ", ")),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}

	o.transition(Transition{Environment: env, SHA: sha, State: StateQueued, Detail: strings.Join(stages, ",")})
	return nil
}

// emitReady posts a terminal-but-actionable check offering the deploy
// action. Used both for manual-only configs on push, and as the
// fallback when the lock is held by another commit.
func (o *Orchestrator) emitReady(ctx context.Context, cfg *deployconfig.Config, sha string) error {
	env := cfg.ID

	checkID, err := o.platform.CreateCheckRun(ctx, env, sha)
	if err != nil {
		return fmt.Errorf("creating check run: %w", err)
	}

	err = o.platform.UpdateCheckRun(ctx, checkID, CheckUpdate{
		Status:     StatusCompleted,
		Conclusion: ConclusionNeutral,
		Actions: []CheckAction{{
			Label:       "Deploy",
			Description: fmt.Sprintf("Deploy this commit to %s", cfg.Name),
			Identifier:  ActionDeploy,
		}},
		Output: &CheckOutput{
			Title:   "Ready to deploy",
			Summary: fmt.Sprintf("Use the Deploy action to start a deployment to %s.", cfg.Name),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}

	o.transition(Transition{Environment: env, SHA: sha, State: StateReady})
	return nil
}

// finishFresh posts a terminal failure check for an environment that
// never got a unit (missing workflow, invalid config).
func (o *Orchestrator) finishFresh(ctx context.Context, env, sha string, state State, title, summary string) error {
	checkID, err := o.platform.CreateCheckRun(ctx, env, sha)
	if err != nil {
		return fmt.Errorf("creating check run: %w", err)
	}

	err = o.platform.UpdateCheckRun(ctx, checkID, CheckUpdate{
		Status:     StatusCompleted,
		Conclusion: ConclusionFailure,
		Output:     &CheckOutput{Title: title, Summary: summary},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}

	o.transition(Transition{Environment: env, SHA: sha, State: state, Detail: title})
	return nil
}

// handleActionRequested covers both fresh manual starts (no unit yet,
// action "deploy") and stage advancement (unit exists, action declared
// by a running stage). Stale deliveries drop silently.
func (o *Orchestrator) handleActionRequested(ctx context.Context, ev ActionRequested) error {
	l := o.l.With("env", ev.Environment, "sha", short(ev.SHA), "action", ev.Action)

	dep, err := o.platform.LatestDeployment(ctx, ev.Environment)
	if err != nil {
		return fmt.Errorf("loading deployment for %s: %w", ev.Environment, err)
	}

	// the retained resource may belong to a finished deployment of some
	// other commit; only a unit for this very commit can be advanced. A
	// different commit's click is a fresh manual start, and Acquire
	// arbitrates whether the environment is actually free.
	if dep == nil || dep.Unit.SHA != ev.SHA {
		return o.startManual(ctx, ev, l)
	}

	unit := dep.Unit
	if unit.CheckRunID != ev.CheckRunID {
		l.Debug("stale action request, dropping",
			"unitCheck", unit.CheckRunID, "evCheck", ev.CheckRunID)
		return nil
	}

	if err := o.locks.Ensure(ctx, ev.Environment, ev.SHA); err != nil {
		var held *lock.ErrLockHeldByOther
		if errors.As(err, &held) {
			l.Debug("lock held by different commit, dropping", "held", short(held.Held))
			return nil
		}
		return err
	}

	cfg, err := deployconfig.Get(ctx, o.platform, o.opts.ConfigDir, ev.SHA, ev.Environment)
	if err != nil {
		l.Warn("config unavailable for action, dropping", "error", err)
		return nil
	}

	next := cfg.NextStages(unit.Stages, ev.Action)
	if len(next) == 0 {
		l.Debug("action not declared by any running stage, dropping")
		return nil
	}

	artifacts, err := o.collectArtifacts(ctx, ev.Environment, ev.SHA)
	if err != nil {
		return err
	}

	checkID, err := o.platform.CreateCheckRun(ctx, ev.Environment, ev.SHA)
	if err != nil {
		return fmt.Errorf("creating check run: %w", err)
	}

	successor := unit.Advance(next, artifacts)
	successor.CheckRunID = checkID
	successor.Task = TaskDeploy + ":" + ev.Action

	depID, err := o.platform.CreateDeployment(ctx, ev.Environment, o.locks.Branch(ev.Environment), successor.Task, successor)
	if err != nil {
		return fmt.Errorf("creating deployment: %w", err)
	}
	if err := o.platform.CreateDeploymentStatus(ctx, depID, DeployStateQueued, "Deployment queued", cfg.URL); err != nil {
		return fmt.Errorf("creating deployment status: %w", err)
	}

	err = o.platform.UpdateCheckRun(ctx, checkID, CheckUpdate{
		Status: StatusQueued,
		Output: &CheckOutput{
			Title:   "Deployment queued",
			Summary: fmt.Sprintf("Running stages: %s", strings.Join(next, ", ")),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}

	// the successor is live; only now retire the superseded resource
	if err := o.platform.DeleteDeployment(ctx, dep.ID); err != nil {
		return fmt.Errorf("deleting superseded deployment: %w", err)
	}

	o.transition(Transition{Environment: ev.Environment, SHA: ev.SHA, State: StateQueued, Detail: strings.Join(next, ",")})
	return nil
}

// startManual is a fresh start from a ready check's deploy action.
func (o *Orchestrator) startManual(ctx context.Context, ev ActionRequested, l *slog.Logger) error {
	if ev.Action != ActionDeploy {
		l.Debug("unknown action with no deployment in flight, dropping")
		return nil
	}

	cfg, err := deployconfig.Get(ctx, o.platform, o.opts.ConfigDir, ev.SHA, ev.Environment)
	if err != nil {
		l.Warn("config unavailable for manual start, dropping", "error", err)
		return nil
	}

	if err := o.locks.Acquire(ctx, ev.Environment, ev.SHA); err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			l.Debug("lock held, dropping manual start")
			return nil
		}
		return err
	}

	return o.createUnit(ctx, cfg, ev.SHA, TaskDeploy, cfg.EntryStages(), nil, nil)
}

// handleRerequested restarts a failed attempt under a fresh check and
// lock, reusing the failed unit's stage and artifact state when one is
// still known.
func (o *Orchestrator) handleRerequested(ctx context.Context, ev CheckRerequested) error {
	l := o.l.With("env", ev.Environment, "sha", short(ev.SHA), "check", ev.CheckRunID)

	check, err := o.platform.GetCheckRun(ctx, ev.CheckRunID)
	if err != nil {
		return fmt.Errorf("loading check run %d: %w", ev.CheckRunID, err)
	}
	if check.Status != StatusCompleted || check.Conclusion != ConclusionFailure {
		l.Debug("rerequest of a non-failed check, dropping",
			"status", check.Status, "conclusion", check.Conclusion)
		return nil
	}

	cfg, err := deployconfig.Get(ctx, o.platform, o.opts.ConfigDir, ev.SHA, ev.Environment)
	if err != nil {
		l.Warn("config unavailable for rerequest, dropping", "error", err)
		return nil
	}

	dep, err := o.platform.LatestDeployment(ctx, ev.Environment)
	if err != nil {
		return fmt.Errorf("loading deployment for %s: %w", ev.Environment, err)
	}

	stages := cfg.EntryStages()
	var completed []string
	var artifacts map[string]string
	task := TaskDeploy

	prior := dep != nil && dep.Unit.SHA == ev.SHA && dep.Unit.CheckRunID == ev.CheckRunID
	if prior {
		stages = dep.Unit.Stages
		completed = dep.Unit.CompletedStages
		artifacts = dep.Unit.Artifacts
		task = dep.Unit.Task
	}

	if err := o.locks.Acquire(ctx, ev.Environment, ev.SHA); err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			l.Debug("lock held, dropping rerequest")
			return nil
		}
		return err
	}

	if err := o.createUnit(ctx, cfg, ev.SHA, task, stages, completed, artifacts); err != nil {
		return err
	}

	if prior {
		if err := o.platform.DeleteDeployment(ctx, dep.ID); err != nil {
			return fmt.Errorf("deleting failed deployment: %w", err)
		}
	}
	return nil
}

// handleRunStarted upgrades the check from queued to in_progress, but
// only when the reported run actually is the current one. A run that
// already completed is left to the completion handler, however the
// deliveries got ordered.
func (o *Orchestrator) handleRunStarted(ctx context.Context, ev RunStarted) error {
	l := o.l.With("env", ev.Environment, "sha", short(ev.SHA), "suite", ev.SuiteID)

	dep, run, err := o.correlate(ctx, ev.Environment, ev.SHA, ev.SuiteID, l)
	if err != nil || dep == nil {
		return err
	}
	if run.Status == StatusCompleted {
		l.Debug("run already completed, dropping started event")
		return nil
	}

	check, err := o.platform.GetCheckRun(ctx, dep.Unit.CheckRunID)
	if err != nil {
		return fmt.Errorf("loading check run %d: %w", dep.Unit.CheckRunID, err)
	}
	if check.Status != StatusQueued {
		l.Debug("check not queued, dropping started event", "status", check.Status)
		return nil
	}

	err = o.platform.UpdateCheckRun(ctx, dep.Unit.CheckRunID, CheckUpdate{
		Status: StatusInProgress,
		Output: &CheckOutput{
			Title:   "Deployment running",
			Summary: fmt.Sprintf("Running stages: %s", strings.Join(dep.Unit.Stages, ", ")),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}
	if err := o.platform.CreateDeploymentStatus(ctx, dep.ID, DeployStateInProgress, "Deployment running", ""); err != nil {
		return fmt.Errorf("creating deployment status: %w", err)
	}

	o.transition(Transition{Environment: ev.Environment, SHA: ev.SHA, State: StateRunning})
	return nil
}

func (o *Orchestrator) handleRunCompleted(ctx context.Context, ev RunCompleted) error {
	l := o.l.With("env", ev.Environment, "sha", short(ev.SHA), "suite", ev.SuiteID)

	dep, _, err := o.correlate(ctx, ev.Environment, ev.SHA, ev.SuiteID, l)
	if err != nil || dep == nil {
		return err
	}

	return o.finish(ctx, dep, ev.Conclusion == ConclusionSuccess, l)
}

func (o *Orchestrator) handleStatusReported(ctx context.Context, ev StatusReported) error {
	l := o.l.With("env", ev.Environment, "sha", short(ev.SHA), "state", ev.State)

	dep, err := o.platform.LatestDeployment(ctx, ev.Environment)
	if err != nil {
		return fmt.Errorf("loading deployment for %s: %w", ev.Environment, err)
	}
	if dep == nil {
		l.Debug("no deployment in flight, dropping status report")
		return nil
	}
	if ev.SHA != "" && dep.Unit.SHA != ev.SHA {
		l.Debug("status report for stale commit, dropping", "unitSha", short(dep.Unit.SHA))
		return nil
	}

	return o.finish(ctx, dep, ev.State == DeployStateSuccess, l)
}

// finish is the shared terminal branching of run-completed and
// status-reported. On success with further actions declared, the
// deployment is incomplete: actions are offered and the lock stays
// held. Otherwise the lock is released.
func (o *Orchestrator) finish(ctx context.Context, dep *Deployment, success bool, l *slog.Logger) error {
	unit := dep.Unit
	env := unit.Environment

	check, err := o.platform.GetCheckRun(ctx, unit.CheckRunID)
	if err != nil {
		return fmt.Errorf("loading check run %d: %w", unit.CheckRunID, err)
	}
	if check.Status == StatusCompleted {
		l.Debug("check already completed, dropping")
		return nil
	}

	if !success {
		err = o.platform.UpdateCheckRun(ctx, unit.CheckRunID, CheckUpdate{
			Status:     StatusCompleted,
			Conclusion: ConclusionFailure,
			Output: &CheckOutput{
				Title:   "Deployment failed",
				Summary: fmt.Sprintf("Stages failed: %s", strings.Join(unit.Stages, ", ")),
			},
		})
		if err != nil {
			return fmt.Errorf("updating check run: %w", err)
		}
		if err := o.platform.CreateDeploymentStatus(ctx, dep.ID, DeployStateFailure, "Deployment failed", ""); err != nil {
			return fmt.Errorf("creating deployment status: %w", err)
		}
		if err := o.locks.Release(ctx, env); err != nil {
			return err
		}
		o.transition(Transition{Environment: env, SHA: unit.SHA, State: StateFailure})
		return nil
	}

	// further actions keep the lock held and the unit advanceable
	var actions []deployconfig.ActionRef
	cfg, err := deployconfig.Get(ctx, o.platform, o.opts.ConfigDir, unit.SHA, env)
	if err != nil {
		l.Warn("config unavailable at completion, finishing without actions", "error", err)
	} else {
		actions = cfg.OfferedActions(unit.Stages)
	}

	var url string
	if cfg != nil {
		url = cfg.URL
	}

	if len(actions) > 0 {
		checkActions := make([]CheckAction, 0, len(actions))
		for _, a := range actions {
			checkActions = append(checkActions, CheckAction{
				Label:       a.Name,
				Description: a.Description,
				Identifier:  a.ID,
			})
		}
		err = o.platform.UpdateCheckRun(ctx, unit.CheckRunID, CheckUpdate{
			Status:     StatusCompleted,
			Conclusion: ConclusionActionRequired,
			Actions:    checkActions,
			Output: &CheckOutput{
				Title:   "Stages complete, actions available",
				Summary: fmt.Sprintf("Completed stages: %s", strings.Join(unit.Stages, ", ")),
			},
		})
		if err != nil {
			return fmt.Errorf("updating check run: %w", err)
		}
		if err := o.platform.CreateDeploymentStatus(ctx, dep.ID, DeployStateSuccess, "Stages complete, awaiting next action", url); err != nil {
			return fmt.Errorf("creating deployment status: %w", err)
		}
		o.transition(Transition{Environment: env, SHA: unit.SHA, State: StateIncomplete})
		return nil
	}

	err = o.platform.UpdateCheckRun(ctx, unit.CheckRunID, CheckUpdate{
		Status:     StatusCompleted,
		Conclusion: ConclusionSuccess,
		Output: &CheckOutput{
			Title:   "Deployment succeeded",
			Summary: fmt.Sprintf("Completed stages: %s", strings.Join(unit.Stages, ", ")),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}
	if err := o.platform.CreateDeploymentStatus(ctx, dep.ID, DeployStateSuccess, "Deployment succeeded", url); err != nil {
		return fmt.Errorf("creating deployment status: %w", err)
	}
	if err := o.locks.Release(ctx, env); err != nil {
		return err
	}

	o.transition(Transition{Environment: env, SHA: unit.SHA, State: StateSuccess})
	return nil
}

// correlate loads the current unit for env and checks the delivered
// run-suite against the most recent run on the lock branch at sha.
// Anything that does not line up is a stale or duplicated delivery and
// returns (nil, zero, nil).
func (o *Orchestrator) correlate(ctx context.Context, env, sha string, suiteID int64, l *slog.Logger) (*Deployment, Run, error) {
	dep, err := o.platform.LatestDeployment(ctx, env)
	if err != nil {
		return nil, Run{}, fmt.Errorf("loading deployment for %s: %w", env, err)
	}
	if dep == nil {
		l.Debug("no deployment in flight, dropping")
		return nil, Run{}, nil
	}
	if dep.Unit.SHA != sha {
		l.Debug("event for stale commit, dropping", "unitSha", short(dep.Unit.SHA))
		return nil, Run{}, nil
	}

	// a completed check means the unit is terminal; drop before Ensure
	// so a late redelivery cannot recreate a released lock
	check, err := o.platform.GetCheckRun(ctx, dep.Unit.CheckRunID)
	if err != nil {
		return nil, Run{}, fmt.Errorf("loading check run %d: %w", dep.Unit.CheckRunID, err)
	}
	if check.Status == StatusCompleted {
		l.Debug("check already completed, dropping")
		return nil, Run{}, nil
	}

	if err := o.locks.Ensure(ctx, env, sha); err != nil {
		var held *lock.ErrLockHeldByOther
		if errors.As(err, &held) {
			l.Debug("lock held by different commit, dropping", "held", short(held.Held))
			return nil, Run{}, nil
		}
		return nil, Run{}, err
	}

	run, found, err := o.latestRun(ctx, env, sha)
	if err != nil {
		return nil, Run{}, err
	}
	if !found {
		l.Debug("no run found on lock branch, dropping")
		return nil, Run{}, nil
	}
	if run.SuiteID != suiteID {
		l.Debug("run does not belong to reported suite, dropping", "runSuite", run.SuiteID)
		return nil, Run{}, nil
	}

	return dep, run, nil
}

// latestRun finds the most recent external run for env's lock branch
// at sha.
func (o *Orchestrator) latestRun(ctx context.Context, env, sha string) (Run, bool, error) {
	runs, err := o.platform.ListRuns(ctx, o.locks.Branch(env), o.opts.RunEvent)
	if err != nil {
		return Run{}, false, fmt.Errorf("listing runs for %s: %w", env, err)
	}
	for _, run := range runs {
		if run.HeadSHA == sha {
			return run, true, nil
		}
	}
	return Run{}, false, nil
}

// collectArtifacts reads the latest run's artifacts into a name -> url
// map, carried forward on the successor unit.
func (o *Orchestrator) collectArtifacts(ctx context.Context, env, sha string) (map[string]string, error) {
	run, found, err := o.latestRun(ctx, env, sha)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	arts, err := o.platform.ListArtifacts(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts for run %d: %w", run.ID, err)
	}

	out := make(map[string]string, len(arts))
	for _, a := range arts {
		out[a.Name] = a.URL
	}
	return out, nil
}

// workflowPresent probes for the external runner's workflow file at
// sha.
func (o *Orchestrator) workflowPresent(ctx context.Context, sha string) (bool, error) {
	_, err := o.platform.ReadFile(ctx, o.opts.WorkflowPath, sha)
	if err != nil {
		if errors.Is(err, deployconfig.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("probing workflow file: %w", err)
	}
	return true, nil
}

func (o *Orchestrator) transition(t Transition) {
	o.l.Info("transition", "env", t.Environment, "sha", short(t.SHA), "state", t.State, "detail", t.Detail)
	if o.observer != nil {
		o.observer(t)
	}
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
