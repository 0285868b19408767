// Package lifecycle handles worker cancellation: converting OS termination
// signals into a context cancellation, and cleaning up a worker's
// subprocess tree before the worker itself exits.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// CleanupWait bounds each of the two wait phases of TerminateTree.
const CleanupWait = 3 * time.Second

// NotifyCancel returns a context that is cancelled when the process
// receives SIGINT or SIGTERM. Cancellation is cooperative: the executing
// worker observes the context at its defined checkpoints rather than having
// an exception injected asynchronously.
func NotifyCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Descendants enumerates all live descendant processes of this process,
// recursively.
func Descendants() ([]*process.Process, error) {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	var all []*process.Process
	collect(self, &all)
	return all, nil
}

func collect(p *process.Process, out *[]*process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		*out = append(*out, c)
		collect(c, out)
	}
}

// TerminateTree terminates every descendant of the current process: first a
// graceful termination request with a bounded wait, then a forceful kill
// with a second bounded wait. Survivors are logged as cleanup failures; the
// call never blocks indefinitely.
func TerminateTree(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	procs, err := Descendants()
	if err != nil {
		log.Warn("failed to enumerate subprocesses", slog.Any("error", err))
		return
	}
	if len(procs) == 0 {
		return
	}

	pids := make([]int32, len(procs))
	for i, p := range procs {
		pids[i] = p.Pid
	}
	log.Debug("terminating subprocesses", slog.Any("pids", pids))

	for _, p := range procs {
		_ = p.Terminate()
	}
	alive := waitProcs(procs, CleanupWait)

	for _, p := range alive {
		_ = p.Kill()
	}
	alive = waitProcs(alive, CleanupWait)

	for _, p := range alive {
		log.Warn("failed to kill subprocess", slog.Int("pid", int(p.Pid)))
	}
}

// waitProcs polls until the given processes have exited or timeout elapses,
// returning the survivors.
func waitProcs(procs []*process.Process, timeout time.Duration) []*process.Process {
	deadline := time.Now().Add(timeout)
	remaining := procs

	for len(remaining) > 0 && time.Now().Before(deadline) {
		var alive []*process.Process
		for _, p := range remaining {
			if running, err := p.IsRunning(); err == nil && running {
				alive = append(alive, p)
			}
		}
		remaining = alive
		if len(remaining) == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return remaining
}
