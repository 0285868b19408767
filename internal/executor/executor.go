// Package executor runs substep statements: signature checking and
// skipping, target verification, statement execution in an embedded
// JavaScript runtime, failure classification, and cleanup.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/subflow-io/subflow/internal/config"
	"github.com/subflow-io/subflow/internal/lifecycle"
	"github.com/subflow-io/subflow/internal/signature"
	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"
)

// Executor executes jobs on behalf of one worker. It is not safe for
// concurrent use; each worker owns its own Executor.
type Executor struct {
	// Store is the signature store. A nil Store disables signature
	// checking entirely.
	Store sigstore.Store

	// Owner identifies this worker for lock ownership.
	Owner string

	// Config is the worker configuration; per-job overrides from
	// Job.Config are merged on top for each job.
	Config config.Config

	// Observer receives progress events. Defaults to NoopObserver.
	Observer api.Observer

	Log *slog.Logger

	// Stdout and Stderr receive statement output for jobs that do not
	// capture. Default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an Executor with defaults filled in.
func New(store sigstore.Store, cfg config.Config) *Executor {
	return &Executor{
		Store:    store,
		Owner:    uuid.NewString(),
		Config:   cfg,
		Observer: api.NoopObserver{},
		Log:      slog.Default(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

func (e *Executor) observer() api.Observer {
	if e.Observer == nil {
		return api.NoopObserver{}
	}
	return e.Observer
}

func (e *Executor) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Execute runs one job to completion and returns its Result.
//
// Every job outcome, including failures, is reported as a Result; the error
// return is reserved for cancellation, where no Result is produced at all.
// The signature lock, when taken, is released on every exit path.
func (e *Executor) Execute(ctx context.Context, job api.Job) (api.Result, error) {
	cfg := e.Config.Merge(job.Config)
	ec := api.NewExecutionContext(job)

	var sig *signature.Record
	if e.Store != nil && cfg.SigMode != config.SigModeIgnore && !job.Output.Unspecified() {
		sig = signature.NewRecord(job, ec)
	}
	// Release must survive cancellation of the job context, otherwise a
	// cancelled worker would leave its lock to expire on its own.
	defer func() {
		if sig != nil {
			sig.Release(context.WithoutCancel(ctx), e.Store)
		}
	}()

	if sig != nil && cfg.SigMode != config.SigModeForce {
		content, matched, err := sig.Validate(ctx, e.Store)
		if err != nil {
			e.log().Warn("signature validation failed",
				slog.String("step_id", job.StepID), slog.Any("error", err))
		} else if matched {
			e.observer().OnSubstepIgnored(ctx, job.StepID)
			return api.Result{
				Index:      job.Index,
				SigSkipped: true,
				Output:     content.Output,
				Shared:     content.Shared,
			}, nil
		}
	}

	if sig != nil {
		if err := sig.Lock(ctx, e.Store, e.Owner, cfg.LockTTL, cfg.LockTimeout); err != nil {
			if ctx.Err() != nil {
				return api.Result{}, ctx.Err()
			}
			return e.failed(ctx, job, err, "", "", ""), nil
		}

		// Another worker may have completed this signature while we
		// waited for the lock.
		if cfg.SigMode != config.SigModeForce {
			content, matched, err := sig.Validate(ctx, e.Store)
			if err == nil && matched {
				e.observer().OnSubstepIgnored(ctx, job.StepID)
				return api.Result{
					Index:      job.Index,
					SigSkipped: true,
					Output:     content.Output,
					Shared:     content.Shared,
				}, nil
			}
		}
	}

	if err := verifyTargets(job); err != nil {
		return e.failed(ctx, job, err, "", "", ""), nil
	}

	stdout, stderr := e.Stdout, e.Stderr
	var outBuf, errBuf bytes.Buffer
	if job.CaptureOutput {
		stdout, stderr = &outBuf, &errBuf
	}

	st := newRunState(ec, stdout, stderr)
	runErr := st.run(ctx, job.Statement)

	if runErr != nil {
		var intr *goja.InterruptedError
		if errors.As(runErr, &intr) && ctx.Err() != nil {
			// The statement may have left external commands behind;
			// they are reaped before the worker reports back.
			lifecycle.TerminateTree(e.Log)
			return api.Result{}, ctx.Err()
		}

		failErr := runErr
		if st.err != nil {
			failErr = st.err
		}
		e.clearOutput(job, st)

		// Control-flow signals report clean: no trace, no captured
		// output from the aborted body.
		if _, isSignal := api.AsSignal(failErr); isSignal {
			return e.failed(ctx, job, failErr, "", "", ""), nil
		}
		trace := FormatTrace(SourceMap{Name: scriptName, Source: job.Statement}, exceptionText(runErr))
		return e.failed(ctx, job, failErr, trace, outBuf.String(), errBuf.String()), nil
	}

	realized := job.Output.Targets
	if !job.Output.Determined() && st.realizedSet {
		realized = st.realized
	}

	shared := st.globals(job.SharedVars)

	if sig != nil {
		sig.SetOutput(realized)
		if _, err := sig.Write(ctx, e.Store, shared); err != nil {
			e.log().Warn("signature write failed",
				slog.String("step_id", job.StepID), slog.Any("error", err))
		}
	}

	e.observer().OnSubstepCompleted(ctx, job.StepID)
	return api.Result{
		Index:  job.Index,
		Output: realized,
		Shared: shared,
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}, nil
}

// failed converts an execution error into a failed Result and reports it.
func (e *Executor) failed(ctx context.Context, job api.Job, err error, trace, stdout, stderr string) api.Result {
	failure := api.FailureFromError(err, trace)
	e.observer().OnSubstepFailed(ctx, job.StepID, failure)
	return api.Result{
		Index:   job.Index,
		RetCode: failure.RetCode(),
		Stdout:  stdout,
		Stderr:  stderr,
		Failure: failure,
	}
}

// verifyTargets checks the job's declared targets before execution. Missing
// inputs always fail; missing dependencies fail only when the statement
// actually refers to them, since dependencies may be variable-only.
func verifyTargets(job api.Job) error {
	for _, t := range job.Input {
		if _, err := os.Stat(t); err != nil {
			return api.NewRemovedTargetError(t)
		}
	}
	for _, d := range job.Depends {
		if _, err := os.Stat(d); err != nil && strings.Contains(job.Statement, d) {
			return api.NewRemovedTargetError(d)
		}
	}
	return nil
}

// clearOutput removes output files left behind by a failed substep, so
// that a later run cannot mistake partial output for a valid target.
func (e *Executor) clearOutput(job api.Job, st *runState) {
	targets := make([]string, 0, len(job.Output.Targets)+len(st.realized))
	targets = append(targets, job.Output.Targets...)
	if st.realizedSet {
		targets = append(targets, st.realized...)
	}
	for _, t := range targets {
		if _, err := os.Stat(t); err != nil {
			continue
		}
		if err := os.Remove(t); err != nil {
			e.log().Warn("failed to remove partial output",
				slog.String("target", t), slog.Any("error", err))
		}
	}
}

// exceptionText extracts the richest available text from a statement
// error. Thrown exceptions carry positions in their stack rendering that
// the plain error string omits.
func exceptionText(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.String()
	}
	return err.Error()
}
