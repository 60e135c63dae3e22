package orchestrator

// State is the externally observable lifecycle state of an
// (environment, commit) pair.
type State string

const (
	// terminal failures for commits that never got a unit
	StateMissingWorkflow State = "missing-workflow"
	StateInvalid         State = "invalid"

	// terminal but actionable: deployable manually once picked
	StateReady State = "ready"

	// unit lifecycle
	StateQueued     State = "queued"
	StateRunning    State = "running"
	StateIncomplete State = "incomplete"
	StateSuccess    State = "success"
	StateFailure    State = "failure"
)

// Transition is one recorded state change, emitted to the observer for
// the live event stream and the journal.
type Transition struct {
	Environment string `json:"environment"`
	SHA         string `json:"sha"`
	State       State  `json:"state"`
	Detail      string `json:"detail,omitempty"`
}
