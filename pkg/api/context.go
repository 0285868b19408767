package api

// Well-known execution-context symbols.
const (
	VarIndex   = "_index"
	VarInput   = "_input"
	VarOutput  = "_output"
	VarDepends = "_depends"
	VarStepID  = "step_id"
)

// ExecutionContext is the per-job namespace a substep or step runs in.
//
// A fresh context is built for every job and discarded afterwards; nothing
// in it survives across jobs. It is passed by reference through the call
// chain rather than held in any process-wide state.
type ExecutionContext struct {
	// Vars is the flat symbol table visible to the statement.
	Vars map[string]any

	// Input, Output and Depends mirror the job's declared targets.
	Input   []string
	Output  OutputSpec
	Depends []string

	// StepID identifies the owning step, mostly for progress events.
	StepID string
}

// NewExecutionContext builds a fresh context seeded from a job.
func NewExecutionContext(job Job) *ExecutionContext {
	ec := &ExecutionContext{
		Vars:    make(map[string]any, len(job.ProcessVars)+5),
		Input:   job.Input,
		Output:  job.Output,
		Depends: job.Depends,
		StepID:  job.StepID,
	}
	ec.Merge(job.ProcessVars)
	ec.Vars[VarIndex] = job.Index
	ec.Vars[VarInput] = job.Input
	ec.Vars[VarOutput] = job.Output.Targets
	ec.Vars[VarDepends] = job.Depends
	ec.Vars[VarStepID] = job.StepID
	return ec
}

// Merge copies vars into the context, overwriting existing symbols.
func (ec *ExecutionContext) Merge(vars map[string]any) {
	for k, v := range vars {
		ec.Vars[k] = v
	}
}

// Lookup returns the value of a symbol, if present.
func (ec *ExecutionContext) Lookup(name string) (any, bool) {
	v, ok := ec.Vars[name]
	return v, ok
}

// Subset returns the values of the named symbols that are present.
func (ec *ExecutionContext) Subset(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := ec.Vars[n]; ok {
			out[n] = v
		}
	}
	return out
}

// Declared reports whether name is one of the declared input, output or
// dependency targets.
func (ec *ExecutionContext) Declared(name string) bool {
	for _, t := range ec.Input {
		if t == name {
			return true
		}
	}
	for _, t := range ec.Output.Targets {
		if t == name {
			return true
		}
	}
	for _, t := range ec.Depends {
		if t == name {
			return true
		}
	}
	return false
}
