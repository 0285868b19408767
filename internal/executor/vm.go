package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/subflow-io/subflow/pkg/api"
)

// scriptName is the compile name of the statement body; diagnostic traces
// are restricted to positions in this source.
const scriptName = "substep"

// runState carries the per-call execution environment of one statement:
// the namespace, the streams the statement writes to, and whatever the
// builtins recorded while it ran. Nothing in it survives the call.
type runState struct {
	ec *api.ExecutionContext
	rt *goja.Runtime

	stdout io.Writer
	stderr io.Writer

	// err holds the first structured error raised by a builtin, so the
	// executor can classify the failure without unwrapping the thrown
	// JavaScript exception.
	err error

	// realized is the output recorded by the output() builtin for
	// substeps whose declared output was undetermined.
	realized    []string
	realizedSet bool
}

// newRunState builds the statement environment: the goja runtime seeded
// with the execution context and the engine builtins.
func newRunState(ec *api.ExecutionContext, stdout, stderr io.Writer) *runState {
	st := &runState{
		ec:     ec,
		rt:     goja.New(),
		stdout: stdout,
		stderr: stderr,
	}

	for k, v := range ec.Vars {
		_ = st.rt.Set(k, v)
	}

	st.setupConsole()
	_ = st.rt.Set("run", st.builtinRun)
	_ = st.rt.Set("output", st.builtinOutput)
	_ = st.rt.Set("target", st.builtinTarget)
	_ = st.rt.Set("readFile", st.builtinReadFile)
	_ = st.rt.Set("writeFile", st.builtinWriteFile)
	_ = st.rt.Set("exists", st.builtinExists)
	_ = st.rt.Set("rm", st.builtinRm)
	_ = st.rt.Set("sleep", st.builtinSleep)
	_ = st.rt.Set("skip", st.builtinSkip)
	_ = st.rt.Set("terminate", st.builtinTerminate)

	return st
}

// run executes the statement, interrupting the VM when ctx is cancelled.
func (st *runState) run(ctx context.Context, statement string) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			st.rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer st.rt.ClearInterrupt()

	_, err := st.rt.RunScript(scriptName, statement)
	return err
}

// globals exports the current values of the named VM globals.
func (st *runState) globals(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v := st.rt.Get(n); v != nil && !goja.IsUndefined(v) {
			out[n] = v.Export()
		}
	}
	return out
}

// fail records a structured error and throws it into the VM.
func (st *runState) fail(err error) goja.Value {
	if st.err == nil {
		st.err = err
	}
	panic(st.rt.NewGoError(err))
}

func (st *runState) setupConsole() {
	console := st.rt.NewObject()

	logTo := func(w func() io.Writer) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprintf("%v", arg.Export())
			}
			fmt.Fprintln(w(), strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	_ = console.Set("log", logTo(func() io.Writer { return st.stdout }))
	_ = console.Set("info", logTo(func() io.Writer { return st.stdout }))
	_ = console.Set("warn", logTo(func() io.Writer { return st.stderr }))
	_ = console.Set("error", logTo(func() io.Writer { return st.stderr }))
	_ = st.rt.Set("console", console)
	_ = st.rt.Set("print", logTo(func() io.Writer { return st.stdout }))
}

// builtinRun executes an external command through the shell and returns its
// standard output. A non-zero exit becomes an external failure carrying the
// exit code and the captured stderr text.
func (st *runState) builtinRun(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("run() expects exactly one command string"))
	}
	cmdText, ok := call.Argument(0).Export().(string)
	if !ok {
		return st.fail(api.NewArgumentError("run() expects a command string, got %v", call.Argument(0)))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command("/bin/sh", "-c", cmdText)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, st.stderr)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			return st.fail(api.NewExternalError(exitErr.ExitCode(), stderr.String()))
		}
		return st.fail(fmt.Errorf("run %q: %w", cmdText, err))
	}
	return st.rt.ToValue(stdout.String())
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// builtinOutput records the realized output targets of the substep.
func (st *runState) builtinOutput(call goja.FunctionCall) goja.Value {
	targets := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		switch v := arg.Export().(type) {
		case string:
			targets = append(targets, v)
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return st.fail(api.NewArgumentError("output() expects target names, got %v", item))
				}
				targets = append(targets, s)
			}
		default:
			return st.fail(api.NewArgumentError("output() expects target names, got %v", v))
		}
	}
	st.realized = targets
	st.realizedSet = true
	_ = st.rt.Set(api.VarOutput, targets)
	return goja.Undefined()
}

// builtinTarget resolves a declared target by name. Referencing a target
// that was never declared is an unknown-target signal.
func (st *runState) builtinTarget(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("target() expects exactly one name"))
	}
	name, ok := call.Argument(0).Export().(string)
	if !ok {
		return st.fail(api.NewArgumentError("target() expects a name string"))
	}
	if !st.ec.Declared(name) {
		return st.fail(api.NewUnknownTargetError(name))
	}
	return st.rt.ToValue(name)
}

func (st *runState) builtinReadFile(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("readFile() expects exactly one path"))
	}
	path, ok := call.Argument(0).Export().(string)
	if !ok {
		return st.fail(api.NewArgumentError("readFile() expects a path string"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && st.ec.Declared(path) {
			return st.fail(api.NewRemovedTargetError(path))
		}
		return st.fail(err)
	}
	return st.rt.ToValue(string(data))
}

func (st *runState) builtinWriteFile(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 2 {
		return st.fail(api.NewArgumentError("writeFile() expects a path and content"))
	}
	path, ok1 := call.Argument(0).Export().(string)
	content, ok2 := call.Argument(1).Export().(string)
	if !ok1 || !ok2 {
		return st.fail(api.NewArgumentError("writeFile() expects string arguments"))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return st.fail(err)
	}
	return goja.Undefined()
}

func (st *runState) builtinExists(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("exists() expects exactly one path"))
	}
	path, ok := call.Argument(0).Export().(string)
	if !ok {
		return st.fail(api.NewArgumentError("exists() expects a path string"))
	}
	_, err := os.Stat(path)
	return st.rt.ToValue(err == nil)
}

func (st *runState) builtinRm(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("rm() expects exactly one path"))
	}
	path, ok := call.Argument(0).Export().(string)
	if !ok {
		return st.fail(api.NewArgumentError("rm() expects a path string"))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return st.fail(err)
	}
	return goja.Undefined()
}

func (st *runState) builtinSleep(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return st.fail(api.NewArgumentError("sleep() expects a duration in milliseconds"))
	}
	ms, ok := call.Argument(0).Export().(int64)
	if !ok || ms < 0 {
		return st.fail(api.NewArgumentError("sleep() expects a non-negative number"))
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return goja.Undefined()
}

func (st *runState) builtinSkip(call goja.FunctionCall) goja.Value {
	return st.fail(api.NewSkipGroupError(optionalMessage(call, "input group skipped")))
}

func (st *runState) builtinTerminate(call goja.FunctionCall) goja.Value {
	return st.fail(api.NewTerminateError(optionalMessage(call, "execution terminated")))
}

func optionalMessage(call goja.FunctionCall, fallback string) string {
	if len(call.Arguments) > 0 {
		if s, ok := call.Argument(0).Export().(string); ok {
			return s
		}
	}
	return fallback
}
