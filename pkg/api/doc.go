// Package api contains the core data model shared by the subflow execution
// engine: jobs, results, execution contexts, control messages, and the
// closed failure taxonomy that crosses worker boundaries.
//
// Most users interact with the higher-level subflow package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Jobs and Results
//
// A Job is the smallest independently dispatchable unit of workflow
// execution. It carries the compiled statement, the per-job execution
// context seed, the declared input/output/dependency targets, and the
// identity pieces (step id, step tokens, signature variables) that key the
// substep's memoization signature.
//
// A Result is the uniform outcome record for one Job. Every failure mode a
// substep can hit is converted into a Result rather than propagated; only
// cancellation is allowed to unwind a worker. Results are delivered exactly
// once per job, on a per-job channel, with no ordering guarantee relative
// to other in-flight jobs.
//
// # Failures
//
// Failure is a closed, serializable enumeration of failure kinds: expected
// control-flow signals (skip, terminate, missing or removed targets,
// unavailable lock), external-process failures carrying the exit code and
// captured stderr, argument errors, and uncaught runtime failures with a
// bounded diagnostic trace. Failures carry plain data only so they can be
// sent across process boundaries.
//
// Inside the engine, these conditions travel as ordinary Go errors created
// by the New*Error constructors and classified with the As*/Is* helpers;
// FailureFromError performs the conversion at the worker boundary.
//
// # Control Messages
//
// StepMessage and WorkflowMessage are the two message kinds handled by the
// heavier step worker: whole-step execution with a suspend/resume relay,
// and nested workflow runs whose failures are forwarded back as data.
//
// # Observability
//
// The Observer interface carries the best-effort progress events
// (substep_ignored, substep_completed, and friends) emitted at most once
// per job. Ready-made implementations include a slog-backed logger, simple
// in-memory counters, and a composite that fans out to several observers.
package api
