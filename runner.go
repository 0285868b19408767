package subflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/subflow-io/subflow/internal/pool"
)

// ErrJobCancelled is returned by Execute when the job was cancelled before
// producing a Result.
var ErrJobCancelled = errors.New("subflow: job cancelled")

// Runner bundles a signature store and a worker pool into a simple
// single-process execution surface.
//
// Typical usage:
//
//	runner := subflow.NewRunner(subflow.NewMemoryStore(), subflow.DefaultConfig())
//	if err := runner.Start(ctx); err != nil { ... }
//	defer runner.Stop()
//
//	res, err := runner.Execute(ctx, subflow.Job{...})
type Runner struct {
	// Store is the signature store shared by all workers.
	Store SignatureStore

	cfg      Config
	observer Observer
	log      *slog.Logger
	stdout   io.Writer
	stderr   io.Writer

	mu      sync.Mutex
	pool    *pool.Pool
	running bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver sets the progress observer shared by all workers.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithStreams sets the stdout/stderr writers used by jobs that do not
// capture their output.
func WithStreams(stdout, stderr io.Writer) RunnerOption {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewRunner constructs a Runner over the given store and configuration.
// A nil store disables signature checking.
func NewRunner(store SignatureStore, cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		Store:    store,
		cfg:      cfg,
		observer: NoopObserver{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker pool.
//
// If Start is called more than once without Stop, it returns an error.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("subflow: Runner already started")
	}

	p := pool.New(r.Store, r.cfg,
		pool.WithObserver(r.observer),
		pool.WithLogger(r.log),
		pool.WithStreams(r.stdout, r.stderr),
	)
	if err := p.Start(ctx); err != nil {
		return err
	}
	r.pool = p
	r.running = true
	return nil
}

// Submit hands a job to the next ready worker and returns the channel its
// Result will arrive on. The channel delivers exactly one Result and is
// then closed; on cancellation it is closed without a Result.
func (r *Runner) Submit(ctx context.Context, job Job) (<-chan Result, error) {
	r.mu.Lock()
	p := r.pool
	running := r.running
	r.mu.Unlock()
	if !running {
		return nil, errors.New("subflow: Runner not started")
	}
	return p.Dispatch(ctx, job)
}

// Execute dispatches a job and blocks for its Result.
func (r *Runner) Execute(ctx context.Context, job Job) (Result, error) {
	ch, err := r.Submit(ctx, job)
	if err != nil {
		return Result{}, err
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return Result{}, ErrJobCancelled
		}
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop shuts the worker pool down, letting in-flight jobs finish. It is
// safe to call Stop more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	p := r.pool
	r.running = false
	r.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}
