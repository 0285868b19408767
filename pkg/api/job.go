package api

import (
	"encoding/gob"
)

func init() {
	gob.Register(Job{})
	gob.Register(Result{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// OutputMode describes how much is known about a substep's declared output
// before the substep runs.
type OutputMode string

const (
	// OutputDetermined means the output targets are fully known up front.
	OutputDetermined OutputMode = "determined"

	// OutputUndetermined means output targets exist but can only be
	// resolved after the statement has run.
	OutputUndetermined OutputMode = "undetermined"

	// OutputUnspecified means the substep declares no output at all.
	// Signature checking is disabled for such substeps.
	OutputUnspecified OutputMode = "unspecified"
)

// OutputSpec is the declared output of a substep.
type OutputSpec struct {
	Targets []string
	Mode    OutputMode
}

// Determined reports whether the output targets are known before execution.
func (o OutputSpec) Determined() bool { return o.Mode == OutputDetermined }

// Unspecified reports whether the substep declares no output.
func (o OutputSpec) Unspecified() bool { return o.Mode == OutputUnspecified }

// Job is one dispatchable unit of substep work.
//
// A Job is immutable once dispatched and owned exclusively by the worker
// executing it until its Result has been delivered.
type Job struct {
	// Index correlates the Result with this dispatch. Results carry no
	// ordering guarantee, so the coordinator must match on Index.
	Index int

	// Statement is the compiled body of the substep.
	Statement string

	// ProcessVars are workflow-scoped symbols merged into the execution
	// context before the statement runs. Scoped to this job only.
	ProcessVars map[string]any

	// StepID identifies the step this substep belongs to; it is the
	// step-identity component of the signature key.
	StepID string

	// StepTokens are the tokenized step body used for signature identity.
	StepTokens []string

	// Input, Output and Depends are the declared targets of the substep.
	Input   []string
	Output  OutputSpec
	Depends []string

	// SignatureVars names the context variables whose values participate
	// in the signature.
	SignatureVars []string

	// SharedVars names the context variables echoed back to the
	// coordinator in the Result.
	SharedVars []string

	// Config holds per-job configuration overrides merged into the
	// worker's configuration for the duration of this job.
	Config map[string]any

	// CaptureOutput redirects the statement's stdout/stderr into buffers
	// returned with the Result instead of the worker's own streams.
	CaptureOutput bool
}

// Result is the uniform outcome record of one Job. Exactly one Result is
// produced per dispatched job (cancellation excepted) and delivered on the
// job's dedicated result channel.
type Result struct {
	Index int

	// RetCode is 0 on success, 1 on generic failure, and any other
	// positive value is a propagated external-process exit code.
	RetCode int

	// SigSkipped is set when a matching signature allowed execution to
	// be skipped entirely.
	SigSkipped bool

	// Output holds the realized output targets, echoed from the written
	// or matched signature.
	Output []string

	// Shared holds the values of the job's SharedVars after execution,
	// or the shared context stored with a matched signature.
	Shared map[string]any

	// Stdout and Stderr carry captured output when Job.CaptureOutput
	// was set.
	Stdout string
	Stderr string

	// Failure describes why the substep failed, if RetCode != 0.
	Failure *Failure
}

// OK reports whether the substep succeeded.
func (r Result) OK() bool { return r.RetCode == 0 }
