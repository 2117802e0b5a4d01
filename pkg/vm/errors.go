package vm

import (
	"fmt"
	"strings"
)

// StackFrame is a snapshot of one call frame at the moment a runtime error
// was raised: which function it was executing and at what source line.
type StackFrame struct {
	Name string // function/method name, or "<script>" for top-level code
	Line int    // source line the frame's IP had reached
}

// RuntimeError is what Interpret returns when the VM aborts mid-run (spec
// §4.6): a message plus the call stack at the point of failure, innermost
// frame first.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

// Error formats the error the way a clox-family VM reports it to stderr:
// the message, then one "[line N] in <fn>" line per frame, innermost
// first, script last.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, frame := range e.StackTrace {
		fmt.Fprintf(&b, "\n[line %d] in %s", frame.Line, frame.Name)
	}
	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
