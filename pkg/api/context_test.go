package api

import (
	"testing"
)

func TestNewExecutionContext_SeedsWellKnownVars(t *testing.T) {
	job := Job{
		Index:       7,
		StepID:      "norm_2",
		Input:       []string{"a.csv"},
		Output:      OutputSpec{Targets: []string{"a.norm"}, Mode: OutputDetermined},
		Depends:     []string{"schema.json"},
		ProcessVars: map[string]any{"threshold": 0.5, "_index": -1},
	}

	ec := NewExecutionContext(job)

	if ec.Vars[VarIndex] != 7 {
		t.Fatalf("_index = %v, want 7 (well-known vars must win over process vars)", ec.Vars[VarIndex])
	}
	if ec.Vars[VarStepID] != "norm_2" {
		t.Fatalf("step_id = %v", ec.Vars[VarStepID])
	}
	if got := ec.Vars[VarOutput].([]string); len(got) != 1 || got[0] != "a.norm" {
		t.Fatalf("_output = %v", got)
	}
	if ec.Vars["threshold"] != 0.5 {
		t.Fatalf("process vars not merged")
	}
}

func TestExecutionContext_Declared(t *testing.T) {
	ec := NewExecutionContext(Job{
		Input:   []string{"in.txt"},
		Output:  OutputSpec{Targets: []string{"out.txt"}, Mode: OutputDetermined},
		Depends: []string{"dep.txt"},
	})

	for _, name := range []string{"in.txt", "out.txt", "dep.txt"} {
		if !ec.Declared(name) {
			t.Fatalf("%s should be declared", name)
		}
	}
	if ec.Declared("other.txt") {
		t.Fatalf("other.txt should not be declared")
	}
}

func TestExecutionContext_Subset(t *testing.T) {
	ec := NewExecutionContext(Job{ProcessVars: map[string]any{"a": 1, "b": 2}})

	got := ec.Subset([]string{"a", "missing"})
	if len(got) != 1 || got["a"] != 1 {
		t.Fatalf("Subset = %v", got)
	}
}
