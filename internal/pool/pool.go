// Package pool implements the substep worker pool: a fixed set of workers
// that pull jobs from the coordinator instead of having work pushed at
// them. A worker advertises readiness by handing its inbox to the
// coordinator; the coordinator replies with exactly one job, or with the
// shutdown sentinel. Busy workers are never addressed, so load balances
// across workers naturally.
package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/subflow-io/subflow/internal/config"
	"github.com/subflow-io/subflow/internal/executor"
	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"
)

// ErrStopped is returned by Dispatch after the pool has been stopped.
var ErrStopped = errors.New("pool: stopped")

// dispatch is one unit of the coordinator-to-worker handshake: the job to
// run and the single-use channel its Result comes back on.
type dispatch struct {
	job api.Job

	// result has capacity 1 and is used exactly once: the worker sends
	// one Result and closes it, or closes it without sending when the
	// job was cancelled.
	result chan api.Result
}

// Pool runs substep jobs on a fixed set of pull-based workers.
type Pool struct {
	cfg      config.Config
	store    sigstore.Store
	observer api.Observer
	log      *slog.Logger

	stdout io.Writer
	stderr io.Writer

	// ready carries each idle worker's inbox to the coordinator. A nil
	// dispatch received on an inbox tells the worker to exit.
	ready chan chan *dispatch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithObserver sets the progress observer shared by all workers.
func WithObserver(o api.Observer) Option {
	return func(p *Pool) { p.observer = o }
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithStreams sets the stdout/stderr writers used by jobs that do not
// capture their output.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(p *Pool) {
		p.stdout = stdout
		p.stderr = stderr
	}
}

// New creates a Pool over the given signature store and configuration.
// The pool does no work until Start is called.
func New(store sigstore.Store, cfg config.Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:      cfg,
		store:    store,
		observer: api.NoopObserver{},
		log:      slog.Default(),
		ready:    make(chan chan *dispatch),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. The pool size comes from the configuration.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pool: already started")
	}
	p.started = true

	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(p.ctx)
	}
	p.log.Debug("pool started", slog.Int("workers", p.cfg.Workers))
	return nil
}

// Dispatch hands one job to the next ready worker and returns the channel
// its Result will arrive on. The channel delivers exactly one Result and is
// then closed; on cancellation it is closed without a Result. Dispatch
// blocks until a worker is ready.
func (p *Pool) Dispatch(ctx context.Context, job api.Job) (<-chan api.Result, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, errors.New("pool: not started")
	}
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	p.mu.Unlock()

	d := &dispatch{job: job, result: make(chan api.Result, 1)}
	select {
	case inbox := <-p.ready:
		inbox <- d
		return d.result, nil
	case <-p.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts the pool down: each worker receives the shutdown sentinel the
// next time it asks for work, and Stop returns once all workers have
// exited. In-flight jobs run to completion first.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	// Hand each worker the shutdown sentinel as it comes back for more
	// work. Workers that already exited through context cancellation do
	// not need one.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < p.cfg.Workers; i++ {
			select {
			case inbox := <-p.ready:
				inbox <- nil
			case <-p.ctx.Done():
				return
			}
		}
	}()
	p.wg.Wait()
	p.cancel()
	<-done
	p.log.Debug("pool stopped")
}

// Kill cancels all workers immediately without waiting for in-flight jobs.
func (p *Pool) Kill() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// worker is the pull loop of one worker: advertise the inbox, wait for a
// dispatch, execute, deliver the Result, repeat.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	id := uuid.NewString()
	exec := executor.New(p.store, p.cfg)
	exec.Owner = id
	exec.Observer = p.observer
	exec.Log = p.log.With(slog.String("worker", id))
	if p.stdout != nil {
		exec.Stdout = p.stdout
	}
	if p.stderr != nil {
		exec.Stderr = p.stderr
	}

	inbox := make(chan *dispatch)
	for {
		select {
		case p.ready <- inbox:
		case <-ctx.Done():
			return
		}

		// Once the inbox has been handed over, the coordinator is
		// committed to sending exactly one dispatch or sentinel, and
		// the worker must stay to receive it. Stopping only between
		// handshakes keeps every result channel accounted for.
		d := <-inbox
		if d == nil {
			return
		}

		res, err := exec.Execute(ctx, d.job)
		if err != nil {
			// Cancellation: no Result exists for this job.
			exec.Log.Debug("job cancelled",
				slog.Int("index", d.job.Index), slog.Any("error", err))
			close(d.result)
			continue
		}
		d.result <- res
		close(d.result)
	}
}
