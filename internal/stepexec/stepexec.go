// Package stepexec drives whole workflow steps on dedicated step workers.
//
// A step worker receives a StepMessage or WorkflowMessage, rebuilds the
// step namespace, and drives the step process to completion. While the step
// runs it may suspend with a request for the coordinator, for example to
// resolve a missing dependency; the worker relays each request over its
// persistent control channel and feeds the response back in before
// resuming.
package stepexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/subflow-io/subflow/internal/executor"
	"github.com/subflow-io/subflow/pkg/api"
)

// Control is the bidirectional control channel between one step worker and
// the coordinator. Messages travel one at a time in each direction: a
// worker never sends a second request before the response to the first has
// arrived.
type Control interface {
	Send(msg any) error
	Recv(ctx context.Context) (any, error)
}

// SuspendRequest is what a suspended step process asks the coordinator for.
type SuspendRequest struct {
	// Kind names the request type, for example "dependent_target".
	Kind string

	// Payload is the request data; it must be gob-encodable.
	Payload any
}

// StepProcess is a resumable step execution. Start begins the step; a nil
// SuspendRequest with done=false means the step yielded without needing
// anything and should be resumed immediately. done=true means the step has
// finished and res carries its outcome.
type StepProcess interface {
	Start(ctx context.Context) (req *SuspendRequest, res any, done bool, err error)
	Resume(ctx context.Context, response any) (req *SuspendRequest, res any, done bool, err error)
}

// Drive runs a step process to completion, relaying suspend requests over
// the control channel. It returns the step's final result.
func Drive(ctx context.Context, proc StepProcess, ctrl Control) (any, error) {
	req, res, done, err := proc.Start(ctx)
	for {
		if err != nil {
			return nil, err
		}
		if done {
			return res, nil
		}

		var response any
		if req != nil {
			if err := ctrl.Send(*req); err != nil {
				return nil, fmt.Errorf("send suspend request: %w", err)
			}
			response, err = ctrl.Recv(ctx)
			if err != nil {
				return nil, fmt.Errorf("receive suspend response: %w", err)
			}
		}
		req, res, done, err = proc.Resume(ctx, response)
	}
}

// ProcessFactory builds the step process for a section and its namespace.
type ProcessFactory func(section api.Section, vars map[string]any, cfg map[string]any) (StepProcess, error)

// WorkflowRunner runs a nested workflow to completion. Results of nested
// work are reported to the coordinator out of band; only failures come back
// through the step worker.
type WorkflowRunner interface {
	Run(ctx context.Context, msg api.WorkflowMessage) error
}

// Worker is one step worker: a loop that receives step and workflow
// messages on its control channel and executes them one at a time.
type Worker struct {
	Ctrl     Control
	Factory  ProcessFactory
	Runner   WorkflowRunner
	Observer api.Observer
	Log      *slog.Logger
}

func (w *Worker) observer() api.Observer {
	if w.Observer == nil {
		return api.NoopObserver{}
	}
	return w.Observer
}

func (w *Worker) log() *slog.Logger {
	if w.Log == nil {
		return slog.Default()
	}
	return w.Log
}

// Run receives and executes messages until the context is cancelled or the
// control channel closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.Ctrl.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch m := msg.(type) {
		case api.StepMessage:
			if err := w.runStep(ctx, m); err != nil {
				return err
			}
		case api.WorkflowMessage:
			w.runWorkflow(ctx, m)
		default:
			w.log().Warn("unexpected control message",
				slog.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// runStep rebuilds the step namespace and drives the step to completion,
// sending the result back on the control channel.
func (w *Worker) runStep(ctx context.Context, msg api.StepMessage) error {
	// Shared first, then step context: a step's own context must win
	// over shared values produced elsewhere.
	vars := make(map[string]any, len(msg.Shared)+len(msg.Context))
	for k, v := range msg.Shared {
		vars[k] = v
	}
	for k, v := range msg.Context {
		vars[k] = v
	}

	w.observer().OnStepStart(ctx, msg.Section.Name)

	// Global step-level definitions run once in the rebuilt namespace
	// before the step body.
	if msg.Section.GlobalDef != "" {
		globals, err := executor.ExecuteGlobal(ctx, msg.Section.GlobalDef, vars)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return w.Ctrl.Send(api.FailureFromError(err, ""))
		}
		for k, v := range globals {
			vars[k] = v
		}
	}

	proc, err := w.Factory(msg.Section, vars, msg.Config)
	if err != nil {
		return w.Ctrl.Send(api.FailureFromError(err, ""))
	}

	res, err := Drive(ctx, proc, w.Ctrl)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.Ctrl.Send(api.FailureFromError(err, ""))
	}
	return w.Ctrl.Send(res)
}

// runWorkflow runs a nested workflow; only failures travel back on the
// control channel, as data.
func (w *Worker) runWorkflow(ctx context.Context, msg api.WorkflowMessage) {
	if w.Runner == nil {
		failure := api.FailureFromError(fmt.Errorf("no workflow runner configured"), "")
		w.observer().OnWorkflowFailed(ctx, msg.WorkflowID, failure)
		_ = w.Ctrl.Send(failure)
		return
	}
	if err := w.Runner.Run(ctx, msg); err != nil {
		failure := api.FailureFromError(err, "")
		w.observer().OnWorkflowFailed(ctx, msg.WorkflowID, failure)
		_ = w.Ctrl.Send(failure)
	}
}
