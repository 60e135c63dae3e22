package orchestrator

// The orchestrator consumes one typed event stream. Webhook payloads
// are translated into these variants at the transport edge (see
// forge/github); the state machine never sees raw payloads.
//
// Deliveries may be duplicated, delayed or reordered. Every handler is
// written to be re-entrant: anything stale is dropped, anything
// already-applied is a no-op, and the lock ref arbitrates races.

type Event interface {
	isEvent()
}

// CommitPushed: a commit landed on a branch.
type CommitPushed struct {
	SHA    string
	Branch string
}

// PullRequestUpdated: a pull request was opened or its head moved.
// Branch is the target branch, which is what trigger filters match on.
type PullRequestUpdated struct {
	SHA    string
	Branch string
}

// ActionRequested: an operator clicked an action on a check. Action is
// the action identifier; "deploy" is the well-known fresh-start action
// offered on ready checks.
type ActionRequested struct {
	SHA         string
	Environment string
	CheckRunID  int64
	Action      string
}

// CheckRerequested: an operator asked for a failed check to be retried.
type CheckRerequested struct {
	SHA         string
	Environment string
	CheckRunID  int64
}

// RunStarted: the external runner picked up a run for the environment's
// lock branch. SuiteID correlates the run to its run-suite.
type RunStarted struct {
	SHA         string
	Environment string
	SuiteID     int64
}

// RunCompleted: the external runner finished. Conclusion is "success"
// or "failure".
type RunCompleted struct {
	SHA         string
	Environment string
	SuiteID     int64
	Conclusion  string
}

// StatusReported: an out-of-band status push referencing the current
// deployment directly, with no run-suite to correlate against.
type StatusReported struct {
	SHA         string
	Environment string
	State       string
}

func (CommitPushed) isEvent()       {}
func (PullRequestUpdated) isEvent() {}
func (ActionRequested) isEvent()    {}
func (CheckRerequested) isEvent()   {}
func (RunStarted) isEvent()         {}
func (RunCompleted) isEvent()       {}
func (StatusReported) isEvent()     {}
