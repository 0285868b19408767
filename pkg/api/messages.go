package api

import "encoding/gob"

func init() {
	gob.Register(StepMessage{})
	gob.Register(WorkflowMessage{})
	gob.Register(Section{})
}

// Section is the compiled form of one workflow step handed to a step
// worker. Parsing workflow definitions into sections happens upstream;
// the worker only needs the pieces required to set up and drive execution.
type Section struct {
	Name  string
	Index int

	// GlobalDef holds step-level global definitions executed once before
	// the step body, in the rebuilt namespace.
	GlobalDef string
}

// StepMessage asks a step worker to execute an entire step.
//
// Shared is merged into the namespace before Context so that step-local
// context always wins over stale shared values from unrelated steps.
type StepMessage struct {
	Section   Section
	Context   map[string]any
	Shared    map[string]any
	Args      []string
	Config    map[string]any
	Verbosity int
}

// WorkflowMessage asks a step worker to run a nested (sub-)workflow to
// completion. Nested work reports its results directly upstream; only a
// failure is forwarded back on the worker's control channel, as data.
type WorkflowMessage struct {
	WorkflowID string
	Definition any
	Targets    []string
	Args       []string
	Shared     map[string]any
	Config     map[string]any
}
