package pipeline

import (
	"semefo/internal/assembly"
	"semefo/internal/ledger"
	"semefo/internal/media"
	"semefo/internal/services"
)

// State is a step of a pipeline run.
type State string

const (
	StateScanning     State = "scanning"
	StateGuardChecked State = "guard_checked"
	StateAssembling   State = "assembling"
	StateVerified     State = "verified"
	StateReporting    State = "reporting"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Request names the work to perform.
type Request struct {
	Session media.Session
	Kind    media.Kind
}

// Outcome is the result of a run. Derived carries the audio2 sub-flow of a
// video2 run once extraction was attempted. Reused marks a video2 run that
// found no fragments but a verified merge from an earlier run, whose ledger
// job was left as it was.
type Outcome struct {
	Kind        media.Kind
	State       State
	JobID       ledger.JobID
	Artifact    assembly.Artifact
	Removed     []string
	Dispatched  bool
	Reused      bool
	Err         error
	Transitions []State
	Derived     *Outcome
}

// Succeeded reports whether the run reached Done.
func (o Outcome) Succeeded() bool {
	return o.State == StateDone
}

// ErrorKind returns the failure taxonomy label, or "" on success.
func (o Outcome) ErrorKind() string {
	return services.Kind(o.Err)
}
