package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives progress callbacks from workers. The substep events map
// one-to-one onto the coordinator-facing progress protocol: each is emitted
// at most once per job, after the terminal decision and before the Result
// is sent.
//
// Implementations should be fast and non-blocking; progress reporting is
// best-effort and must never delay execution.
type Observer interface {
	// OnSubstepIgnored is emitted when a matching signature allowed the
	// substep to be skipped without execution.
	OnSubstepIgnored(ctx context.Context, stepID string)

	// OnSubstepCompleted is emitted when a substep has executed and its
	// signature (if any) has been written.
	OnSubstepCompleted(ctx context.Context, stepID string)

	// OnSubstepFailed is emitted when a substep produced a failed Result.
	OnSubstepFailed(ctx context.Context, stepID string, failure *Failure)

	// OnStepStart is emitted when a step worker begins driving a step.
	OnStepStart(ctx context.Context, stepName string)

	// OnWorkflowFailed is emitted when a nested workflow run fails.
	OnWorkflowFailed(ctx context.Context, workflowID string, failure *Failure)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSubstepIgnored(ctx context.Context, stepID string)                  {}
func (NoopObserver) OnSubstepCompleted(ctx context.Context, stepID string)                {}
func (NoopObserver) OnSubstepFailed(ctx context.Context, stepID string, failure *Failure) {}
func (NoopObserver) OnStepStart(ctx context.Context, stepName string)                     {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, workflowID string, failure *Failure) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSubstepIgnored(ctx context.Context, stepID string) {
	for _, o := range c.observers {
		o.OnSubstepIgnored(ctx, stepID)
	}
}

func (c *CompositeObserver) OnSubstepCompleted(ctx context.Context, stepID string) {
	for _, o := range c.observers {
		o.OnSubstepCompleted(ctx, stepID)
	}
}

func (c *CompositeObserver) OnSubstepFailed(ctx context.Context, stepID string, failure *Failure) {
	for _, o := range c.observers {
		o.OnSubstepFailed(ctx, stepID, failure)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, stepName string) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, stepName)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, workflowID string, failure *Failure) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, workflowID, failure)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs progress events using the
// provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSubstepIgnored(ctx context.Context, stepID string) {
	o.Logger.DebugContext(ctx, "substep_ignored",
		slog.String("step_id", stepID),
	)
}

func (o *LoggingObserver) OnSubstepCompleted(ctx context.Context, stepID string) {
	o.Logger.DebugContext(ctx, "substep_completed",
		slog.String("step_id", stepID),
	)
}

func (o *LoggingObserver) OnSubstepFailed(ctx context.Context, stepID string, failure *Failure) {
	o.Logger.ErrorContext(ctx, "substep_failed",
		slog.String("step_id", stepID),
		slog.String("kind", string(failure.Kind)),
		slog.String("error", failure.Error()),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, stepName string) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("step", stepName),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, workflowID string, failure *Failure) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow_id", workflowID),
		slog.String("error", failure.Error()),
	)
}

// BasicMetrics collects simple counters for substep outcomes.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	substepsCompleted atomic.Int64
	substepsIgnored   atomic.Int64
	substepsFailed    atomic.Int64
	workflowsFailed   atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	SubstepsCompleted int64
	SubstepsIgnored   int64
	SubstepsFailed    int64
	WorkflowsFailed   int64
}

func (m *BasicMetrics) OnSubstepIgnored(ctx context.Context, stepID string) {
	m.substepsIgnored.Add(1)
}

func (m *BasicMetrics) OnSubstepCompleted(ctx context.Context, stepID string) {
	m.substepsCompleted.Add(1)
}

func (m *BasicMetrics) OnSubstepFailed(ctx context.Context, stepID string, failure *Failure) {
	m.substepsFailed.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, workflowID string, failure *Failure) {
	m.workflowsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		SubstepsCompleted: m.substepsCompleted.Load(),
		SubstepsIgnored:   m.substepsIgnored.Load(),
		SubstepsFailed:    m.substepsFailed.Load(),
		WorkflowsFailed:   m.workflowsFailed.Load(),
	}
}
