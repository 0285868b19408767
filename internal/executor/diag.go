package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceMap describes a dynamically compiled statement body for diagnostic
// purposes: its compile name and its source text. The formatter consumes
// this instead of inspecting any live call stack, so it stays out of the
// executor's control flow.
type SourceMap struct {
	Name   string
	Source string
}

// contextLines is how many lines are shown around the failing line.
const contextLines = 3

// FormatTrace builds a bounded diagnostic for an error raised inside the
// statement body: a context window around the failing line with a marker on
// the exact line. Positions that do not refer to the statement body (engine
// internals, builtins) produce no trace.
func FormatTrace(sm SourceMap, errText string) string {
	line, ok := locate(sm.Name, errText)
	if !ok {
		return ""
	}
	window := Window(sm.Source, line, contextLines)
	if window == "" {
		return ""
	}
	return fmt.Sprintf("%s, line %d:\n%s", sm.Name, line, window)
}

// locate extracts the failing line number for the named source from an
// error's text. Runtime errors carry positions as "name:line:col".
func locate(name, errText string) (int, bool) {
	re := regexp.MustCompile(regexp.QuoteMeta(name) + `:(\d+)`)
	m := re.FindStringSubmatch(errText)
	if m == nil {
		return 0, false
	}
	var line int
	if _, err := fmt.Sscanf(m[1], "%d", &line); err != nil || line < 1 {
		return 0, false
	}
	return line, true
}

// Window renders the source lines around line (1-based), marking the
// failing line. Lines outside the source are clipped.
func Window(source string, line, context int) string {
	lines := strings.Split(source, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}

	start := line - context
	if start < 1 {
		start = 1
	}
	end := line + context
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		marker := "     "
		if i == line {
			marker = "---->"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, strings.TrimRight(lines[i-1], " \t"))
	}
	return strings.TrimRight(b.String(), "\n")
}
