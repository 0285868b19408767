package executor

import (
	"strings"
	"testing"
)

const sampleSource = "a = 1\nb = 2\nc = boom()\nd = 4\ne = 5"

func TestFormatTrace_MarksFailingLine(t *testing.T) {
	sm := SourceMap{Name: "substep", Source: sampleSource}

	trace := FormatTrace(sm, "ReferenceError: boom is not defined\n\tat substep:3:5(2)")
	if trace == "" {
		t.Fatalf("expected a trace")
	}
	if !strings.Contains(trace, "substep, line 3:") {
		t.Fatalf("trace header = %q", trace)
	}
	if !strings.Contains(trace, "----> c = boom()") {
		t.Fatalf("failing line not marked: %q", trace)
	}
}

func TestFormatTrace_ForeignPosition(t *testing.T) {
	sm := SourceMap{Name: "substep", Source: sampleSource}

	// Errors whose positions refer to other sources produce no trace.
	if trace := FormatTrace(sm, "at engine.go:120"); trace != "" {
		t.Fatalf("expected no trace, got %q", trace)
	}
	if trace := FormatTrace(sm, "no position at all"); trace != "" {
		t.Fatalf("expected no trace, got %q", trace)
	}
}

func TestFormatTrace_LineOutOfRange(t *testing.T) {
	sm := SourceMap{Name: "substep", Source: sampleSource}

	if trace := FormatTrace(sm, "at substep:99:1"); trace != "" {
		t.Fatalf("expected no trace for out-of-range line, got %q", trace)
	}
}

func TestWindow_ClipsAtBoundaries(t *testing.T) {
	w := Window(sampleSource, 1, 3)
	lines := strings.Split(w, "\n")
	if len(lines) != 4 {
		t.Fatalf("window at top should clip: %q", w)
	}
	if !strings.HasPrefix(lines[0], "---->") {
		t.Fatalf("first line should be marked: %q", lines[0])
	}

	w = Window(sampleSource, 5, 3)
	lines = strings.Split(w, "\n")
	if len(lines) != 4 {
		t.Fatalf("window at bottom should clip: %q", w)
	}
	if !strings.HasPrefix(lines[len(lines)-1], "---->") {
		t.Fatalf("last line should be marked: %q", lines[len(lines)-1])
	}
}
