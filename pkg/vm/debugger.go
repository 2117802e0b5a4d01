package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Debugger is an optional, attached diagnostic: interactive breakpoint and
// single-step support over the real dispatch loop. A VM with no Debugger
// attached never pays for it — run's hot loop only checks vm.debugger.enabled.
type Debugger struct {
	vm          *VM
	out         io.Writer
	breakpoints map[int]bool // source line -> pause here
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a debugger for vm, writing its interactive output to
// out (the REPL's stdout, typically).
func NewDebugger(vm *VM, out io.Writer) *Debugger {
	return &Debugger{vm: vm, out: out, breakpoints: make(map[int]bool)}
}

func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

func (d *Debugger) AddBreakpoint(line int)    { d.breakpoints[line] = true }
func (d *Debugger) RemoveBreakpoint(line int) { delete(d.breakpoints, line) }
func (d *Debugger) ClearBreakpoints()         { d.breakpoints = make(map[int]bool) }

// beforeInstruction runs once per dispatch-loop iteration, just before the
// opcode at frame's current ip is decoded. Returning false aborts the run
// with a runtime error (the user quit the session).
func (d *Debugger) beforeInstruction(frame *CallFrame) bool {
	line := frame.closure.Function.Chunk.Lines[frame.ip]
	if !d.stepMode && !d.breakpoints[line] {
		return true
	}
	return d.interactivePrompt(frame)
}

func (d *Debugger) interactivePrompt(frame *CallFrame) bool {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(d.out, "\n=== paused ===")
	d.showCurrentInstruction(frame)

	for {
		fmt.Fprint(d.out, "debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.showStack()
		case "globals", "g":
			d.showGlobals()
		case "callstack", "cs":
			d.showCallStack()
		case "instruction", "i":
			d.showCurrentInstruction(frame)
		case "break", "b":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: break <line>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid line number")
				continue
			}
			d.AddBreakpoint(n)
			fmt.Fprintf(d.out, "breakpoint set at line %d\n", n)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Fprintln(d.out, "usage: delete <line>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(d.out, "invalid line number")
				continue
			}
			d.RemoveBreakpoint(n)
		case "list", "ls":
			bytecode.Disassemble(d.out, frame.closure.Function.Chunk, frame.closure.Function.String())
		case "quit", "q":
			return false
		default:
			fmt.Fprintf(d.out, "unknown command: %s (try help)\n", parts[0])
		}
	}
}

func (d *Debugger) showCurrentInstruction(frame *CallFrame) {
	bytecode.DisassembleInstruction(d.out, frame.closure.Function.Chunk, frame.ip)
}

func (d *Debugger) showStack() {
	fmt.Fprintln(d.out, "stack (top to bottom):")
	if d.vm.stackTop == 0 {
		fmt.Fprintln(d.out, "  (empty)")
		return
	}
	for i := d.vm.stackTop - 1; i >= 0; i-- {
		fmt.Fprintf(d.out, "  [%d] %s\n", i, d.vm.stack[i].String())
	}
}

func (d *Debugger) showGlobals() {
	fmt.Fprintln(d.out, "globals:")
	empty := true
	d.vm.globals.Each(func(k table.Key, v value.Value) {
		empty = false
		fmt.Fprintf(d.out, "  %s = %s\n", k.KeyChars(), v.String())
	})
	if empty {
		fmt.Fprintln(d.out, "  (none)")
	}
}

func (d *Debugger) showCallStack() {
	fmt.Fprintln(d.out, "call stack (top to bottom):")
	if d.vm.frameCount == 0 {
		fmt.Fprintln(d.out, "  (empty)")
		return
	}
	for i := d.vm.frameCount - 1; i >= 0; i-- {
		f := d.vm.frames[i]
		line := f.closure.Function.Chunk.Lines[f.ip]
		fmt.Fprintf(d.out, "  %s [line %d]\n", f.closure.Function.String(), line)
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.out, "debugger commands:")
	fmt.Fprintln(d.out, "  help, h, ?       show this help")
	fmt.Fprintln(d.out, "  continue, c      resume execution")
	fmt.Fprintln(d.out, "  step, s          pause again after the next instruction")
	fmt.Fprintln(d.out, "  stack, st        show the value stack")
	fmt.Fprintln(d.out, "  globals, g       show the globals table")
	fmt.Fprintln(d.out, "  callstack, cs    show the call stack")
	fmt.Fprintln(d.out, "  instruction, i   show the current instruction")
	fmt.Fprintln(d.out, "  break <line>, b  pause when this source line is reached")
	fmt.Fprintln(d.out, "  delete <line>, d remove a breakpoint")
	fmt.Fprintln(d.out, "  list, ls         disassemble the current function")
	fmt.Fprintln(d.out, "  quit, q          abort execution")
}
