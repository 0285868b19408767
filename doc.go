// Package subflow provides an embeddable substep execution engine for Go.
//
// Subflow runs the statements of data-processing workflows: it schedules
// substep jobs onto a pool of pull-based workers, skips work whose
// signatures show it has already been done, and reports every outcome as a
// uniform Result. It runs fully in Go and integrates cleanly into existing
// codebases.
//
// # Core Concepts
//
// The subflow programming model is intentionally small:
//
//  1. Job and Result
//  2. SignatureStore
//  3. Runner
//  4. Observer
//
// # Job and Result
//
// A Job is one dispatchable unit of work: a statement, the namespace it
// runs in, its declared input, output and dependency targets, and the
// variables that participate in its signature. Exactly one Result comes
// back per dispatched job, carrying the return code, realized output,
// shared variables, optionally captured output streams, and a structured
// Failure when the job did not succeed.
//
// Failures are plain data. Expected control flow (skip this input group,
// terminate, a missing target, an unavailable signature lock), external
// command failures with their exit code and stderr, argument errors, and
// runtime errors with a bounded source trace are all distinguishable from
// the Failure record alone.
//
// # SignatureStore
//
// Substeps are memoized by signature: a digest over the step identity, its
// tokenized body, the declared targets, and the values of the signature
// variables. Before running, a worker validates the job's signature
// against the store and skips execution entirely when the recorded target
// fingerprints still match what is on disk.
//
// Stores can be backed by different transports:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - A remote store service reached over sockets, for multi-process runs
//
// Signature locks are leases with a TTL, so a worker killed mid-run blocks
// a signature only until its lease expires.
//
// # Runner
//
// A Runner bundles a SignatureStore with a worker pool. Workers pull jobs
// rather than having work pushed at them: an idle worker advertises
// readiness, the coordinator replies with one job or a shutdown sentinel,
// and load balances across workers naturally.
//
//	runner := subflow.NewRunner(subflow.NewMemoryStore(), subflow.DefaultConfig())
//	if err := runner.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer runner.Stop()
//
//	res, err := runner.Execute(ctx, subflow.Job{
//		Index:     0,
//		StepID:    "build",
//		Statement: `run("make all")`,
//	})
//
// # Observer
//
// Observers receive progress callbacks: substep skipped, completed or
// failed, step started, nested workflow failed. LoggingObserver writes
// structured logs, BasicMetrics counts outcomes, and CompositeObserver
// fans events out to several observers at once.
package subflow
