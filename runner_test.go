package subflow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunner_ExecuteSimpleJob(t *testing.T) {
	ctx := context.Background()
	runner := NewRunner(NewMemoryStore(), DefaultConfig())
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	res, err := runner.Execute(ctx, Job{
		Index:         1,
		Statement:     `x = 2 * 21; console.log("answer:", x)`,
		CaptureOutput: true,
	})
	require.NoError(t, err)
	require.True(t, res.OK(), "failure: %v", res.Failure)
	require.Contains(t, res.Stdout, "answer: 42")
}

func TestRunner_SignatureSkipAcrossJobs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	runner := NewRunner(NewMemoryStore(), DefaultConfig())
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	job := Job{
		Statement: fmt.Sprintf(`writeFile(%q, "data")`, out),
		StepID:    "produce",
		Output:    OutputSpec{Targets: []string{out}, Mode: OutputDetermined},
	}

	first, err := runner.Execute(ctx, job)
	require.NoError(t, err)
	require.True(t, first.OK())
	require.False(t, first.SigSkipped)

	second, err := runner.Execute(ctx, job)
	require.NoError(t, err)
	require.True(t, second.OK())
	require.True(t, second.SigSkipped, "second execution should reuse the signature")
}

func TestRunner_ObserverSeesOutcomes(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetrics{}

	runner := NewRunner(nil, DefaultConfig(), WithObserver(metrics))
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	res, err := runner.Execute(ctx, Job{Statement: `ok = true`})
	require.NoError(t, err)
	require.True(t, res.OK())

	res, err = runner.Execute(ctx, Job{Statement: `terminate("stop")`})
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Equal(t, KindSignal, res.Failure.Kind)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.SubstepsCompleted)
	require.Equal(t, int64(1), snap.SubstepsFailed)
}

func TestRunner_SubmitManyJobs(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Workers = 4

	runner := NewRunner(NewMemoryStore(), cfg)
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	const jobs = 12
	channels := make([]<-chan Result, jobs)
	for i := 0; i < jobs; i++ {
		ch, err := runner.Submit(ctx, Job{
			Index:      i,
			Statement:  fmt.Sprintf(`v = %d + 100`, i),
			SharedVars: []string{"v"},
		})
		require.NoError(t, err)
		channels[i] = ch
	}

	for i, ch := range channels {
		res, ok := <-ch
		require.True(t, ok, "job %d lost its result", i)
		require.True(t, res.OK())
		require.Equal(t, i, res.Index)
		require.Equal(t, int64(i+100), res.Shared["v"])
	}
}

func TestRunner_LifecycleErrors(t *testing.T) {
	ctx := context.Background()
	runner := NewRunner(nil, DefaultConfig())

	_, err := runner.Submit(ctx, Job{Statement: `x = 1`})
	require.Error(t, err, "Submit before Start must fail")

	require.NoError(t, runner.Start(ctx))
	require.Error(t, runner.Start(ctx), "second Start must fail")

	runner.Stop()
	runner.Stop() // idempotent

	_, err = runner.Submit(ctx, Job{Statement: `x = 1`})
	require.Error(t, err, "Submit after Stop must fail")
}
