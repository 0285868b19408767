package executor

import (
	"context"
	"io"

	"github.com/dop251/goja"

	"github.com/subflow-io/subflow/pkg/api"
)

// ExecuteGlobal evaluates a step's global definitions in a namespace
// seeded with vars and returns every symbol the definitions introduced,
// plus the current value of every seeded symbol, so reassignments are
// picked up too. The definitions run with the same builtins available to
// substep statements. Function definitions stay inside the evaluation
// runtime and are not exported.
func ExecuteGlobal(ctx context.Context, source string, vars map[string]any) (map[string]any, error) {
	st := newRunState(&api.ExecutionContext{Vars: vars}, io.Discard, io.Discard)

	seeded := make(map[string]struct{})
	for _, k := range st.rt.GlobalObject().Keys() {
		seeded[k] = struct{}{}
	}

	if err := st.run(ctx, source); err != nil {
		if st.err != nil {
			return nil, st.err
		}
		return nil, err
	}

	out := make(map[string]any)
	for _, k := range st.rt.GlobalObject().Keys() {
		if _, present := seeded[k]; present {
			// Seeded names that did not come from vars are builtins.
			if _, fromVars := vars[k]; !fromVars {
				continue
			}
		}
		v := st.rt.Get(k)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		if _, isFn := goja.AssertFunction(v); isFn {
			continue
		}
		out[k] = v.Export()
	}
	return out, nil
}
