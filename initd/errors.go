package initd

import "fmt"

// Stage names the orchestration step an error came from.
type Stage string

const (
	StageDiscover Stage = "discover"
	StageGraph    Stage = "graph"
	StageLaunch   Stage = "launch"
	StageAssemble Stage = "assemble"
)

// Error is a fatal orchestration error. Nothing started before it is
// rolled back.
type Error struct {
	Stage   Stage
	Service string
	Err     error
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("init %s [%s]: %v", e.Stage, e.Service, e.Err)
	}
	return fmt.Sprintf("init %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, service string, err error) *Error {
	return &Error{Stage: stage, Service: service, Err: err}
}
