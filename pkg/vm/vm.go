// Package vm implements the stack-based bytecode interpreter: the value
// stack, call-frame stack, opcode dispatch loop, and the mark-sweep
// collector, which runs on tracked allocations (during compilation as well
// as execution) and once per dispatch-loop iteration (spec §4.5, §8).
package vm

import (
	"fmt"
	"io"
	"time"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// framesMax bounds call depth; stackMax follows from it the way the
// original's STACK_MAX does (one frame's worth of locals for every frame).
const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// gcHeapGrowFactor is how much the next collection threshold grows past
// the bytes still live after a collection (spec §8).
const gcHeapGrowFactor = 2

// initialNextGC is the byte threshold before the first collection ever
// runs, chosen generously so short scripts never collect at all.
const initialNextGC = 1 << 20

// CallFrame is one live call: the closure it is executing, its bytecode
// cursor, and the base stack slot its locals start at (spec §4.5).
type CallFrame struct {
	closure *object.Closure
	ip      int
	slots   int
}

// VM is one interpreter instance: a value stack, a call-frame stack,
// global variables, the shared string/object heap, and GC bookkeeping.
// Create one per Interpret call, or reuse across calls to keep globals
// and natives alive between REPL lines (cmd/smog does the latter).
type VM struct {
	stack      [stackMax]value.Value
	stackTop   int
	frames     [framesMax]CallFrame
	frameCount int

	globals      *table.Table
	heap         *object.Interner
	openUpvalues *object.Upvalue
	initString   *object.String

	stdout io.Writer
	stderr io.Writer

	stressGC bool
	logGC    bool
	nextGC   int
	started  time.Time

	debugger *Debugger
}

// New builds a VM ready to Interpret source. stdout receives OP_PRINT
// output; stderr receives GC logging when logGC is set. stressGC runs a
// full collection before every single allocation (spec §8), a diagnostic
// knob, never something a real program should set.
func New(stdout, stderr io.Writer, stressGC, logGC bool) *VM {
	vm := &VM{
		globals:  table.New(),
		heap:     object.NewInterner(),
		stdout:   stdout,
		stderr:   stderr,
		stressGC: stressGC,
		logGC:    logGC,
		nextGC:   initialNextGC,
		started:  time.Now(),
	}
	vm.initString = vm.heap.Intern("init")
	vm.defineNative("clock", vm.clockNative)
	// Wired after this constructor's own interning above, so neither of
	// those bootstrap allocations can trigger a collection before
	// initString is actually assigned. From here on every tracked
	// allocation — compiler's or the VM's own, whichever phase is live —
	// runs the same threshold check.
	vm.heap.SetOnAlloc(vm.maybeCollect)
	return vm
}

// Heap exposes the shared string/object pool so a caller can compile
// source against the same intern table a running VM already populated.
func (vm *VM) Heap() *object.Interner { return vm.heap }

// AttachDebugger wires an optional breakpoint/step diagnostic into the
// dispatch loop. Without one attached, run() never consults it.
func (vm *VM) AttachDebugger(d *Debugger) { vm.debugger = d }

// Interpret compiles and runs one top-level script. A compile error
// surfaces as (false, nil); a runtime error as (false, err) with err a
// *RuntimeError.
func (vm *VM) Interpret(source string) (bool, error) {
	fn, ok := compiler.Compile(source, vm.heap, vm.stderr)
	if !ok {
		return false, nil
	}

	// fn is rooted on the stack while its closure is allocated.
	vm.push(value.FromObj(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(value.FromObj(closure))
	if err := vm.call(closure, 0); err != nil {
		return false, err
	}
	if err := vm.run(); err != nil {
		return false, err
	}
	return true, nil
}

// --- stack --------------------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// --- dispatch loop --------------------------------------------------------

func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := frame.closure.Function.Chunk.Code[frame.ip]
		lo := frame.closure.Function.Chunk.Code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.ConstantAt(int(readByte()))
	}
	readString := func() *object.String {
		return readConstant().AsObj().(*object.String)
	}

	for {
		vm.maybeCollect()

		if vm.debugger != nil && vm.debugger.enabled {
			if !vm.debugger.beforeInstruction(frame) {
				return vm.runtimeError("Execution aborted from debugger.")
			}
		}

		op := bytecode.Op(readByte())
		switch op {
		case bytecode.OpConstant:
			vm.push(readConstant())

		case bytecode.OpNil:
			vm.push(value.Nil())
		case bytecode.OpTrue:
			vm.push(value.Bool(true))
		case bytecode.OpFalse:
			vm.push(value.Bool(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			vm.push(vm.stack[frame.slots+int(readByte())])
		case bytecode.OpSetLocal:
			vm.stack[frame.slots+int(readByte())] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			vm.globals.Set(readString(), vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			up := frame.closure.Upvalues[readByte()]
			if up.Closed {
				vm.push(up.Value)
			} else {
				vm.push(vm.stack[up.Location])
			}
		case bytecode.OpSetUpvalue:
			up := frame.closure.Upvalues[readByte()]
			if up.Closed {
				up.Value = vm.peek(0)
			} else {
				vm.stack[up.Location] = vm.peek(0)
			}

		case bytecode.OpGetProperty:
			inst, ok := vm.peek(0).AsObj().(*object.Instance)
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := readString()
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}
		case bytecode.OpSetProperty:
			inst, ok := vm.peek(1).AsObj().(*object.Instance)
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := readString()
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)
		case bytecode.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObj().(*object.Class)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpGreater, bytecode.OpLess, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if err := vm.numericBinary(op); err != nil {
				return err
			}
		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OpNot:
			vm.push(value.Bool(vm.pop().Falsy()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.stdout, vm.pop().String())

		case bytecode.OpJump:
			offset := readShort()
			frame.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).Falsy() {
				frame.ip += offset
			}
		case bytecode.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case bytecode.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			superclass := vm.pop().AsObj().(*object.Class)
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := readConstant().AsObj().(*object.Function)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.FromObj(closure))
			upvalueCount := int(readByte())
			for i := 0; i < upvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			vm.push(value.FromObj(vm.heap.NewClass(readString())))

		case bytecode.OpInherit:
			superclass, ok := vm.peek(1).AsObj().(*object.Class)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*object.Class)
			superclass.Methods.AddAll(subclass.Methods)
			vm.pop()

		case bytecode.OpMethod:
			vm.defineMethod(readString())

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) numericBinary(op bytecode.Op) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop().AsNumber(), vm.pop().AsNumber()
	switch op {
	case bytecode.OpGreater:
		vm.push(value.Bool(a > b))
	case bytecode.OpLess:
		vm.push(value.Bool(a < b))
	case bytecode.OpSubtract:
		vm.push(value.Number(a - b))
	case bytecode.OpMultiply:
		vm.push(value.Number(a * b))
	case bytecode.OpDivide:
		vm.push(value.Number(a / b))
	}
	return nil
}

func (vm *VM) add() error {
	switch {
	case vm.peek(0).IsObjKind(byte(object.KindString)) && vm.peek(1).IsObjKind(byte(object.KindString)):
		b := vm.pop().AsObj().(*object.String)
		a := vm.pop().AsObj().(*object.String)
		vm.push(value.FromObj(vm.heap.Intern(a.Chars + b.Chars)))
	case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
		b, a := vm.pop().AsNumber(), vm.pop().AsNumber()
		vm.push(value.Number(a + b))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

// --- calling convention ---------------------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *object.Closure:
			return vm.call(obj, argCount)
		case *object.Native:
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return nil
		case *object.Class:
			instance := vm.heap.NewInstance(obj)
			vm.stack[vm.stackTop-argCount-1] = value.FromObj(instance)
			if initializer, ok := obj.Methods.Get(vm.initString); ok {
				return vm.call(initializer.AsObj().(*object.Closure), argCount)
			}
			if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case *object.BoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// call pushes a new CallFrame for closure. The frame is not yet current
// in vm.frames until the caller (run's dispatch loop, or Interpret for
// the initial script) re-reads vm.frames[vm.frameCount-1].
func (vm *VM) call(closure *object.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	return nil
}

func (vm *VM) invoke(name *object.String, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := receiver.AsObj().(*object.Instance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if v, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *object.Class, name *object.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsObj().(*object.Closure), argCount)
}

func (vm *VM) bindMethod(class *object.Class, name *object.String) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObj().(*object.Closure))
	vm.pop()
	vm.push(value.FromObj(bound))
	return nil
}

func (vm *VM) defineMethod(name *object.String) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*object.Class)
	class.Methods.Set(name, method)
	vm.pop()
}

// --- upvalues -------------------------------------------------------------

// captureUpvalue returns the open Upvalue for the stack slot at location,
// reusing one already open over that slot (spec §3 invariant 4: multiple
// closures over the same local share one Upvalue) or opening a new one in
// the right position of the descending-by-location list.
func (vm *VM) captureUpvalue(location int) *object.Upvalue {
	var prev *object.Upvalue
	up := vm.openUpvalues
	for up != nil && up.Location > location {
		prev = up
		up = up.NextOpen
	}
	if up != nil && up.Location == location {
		return up
	}

	created := vm.heap.NewUpvalue(location)
	created.NextOpen = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above last, copying the
// stack value it pointed at into the Upvalue itself so it survives the
// frame whose stack slots are about to be discarded.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Location >= last {
		up := vm.openUpvalues
		up.Value = vm.stack[up.Location]
		up.Closed = true
		vm.openUpvalues = up.NextOpen
	}
}

// --- natives ---------------------------------------------------------------

func (vm *VM) defineNative(name string, fn object.NativeFn) {
	nameObj := vm.heap.Intern(name)
	native := &object.Native{Name: name, Fn: fn}
	vm.globals.Set(nameObj, value.FromObj(native))
}

// clockNative reports seconds elapsed since the VM was created — the
// language's only native (spec §4.3), grounded on the original's
// `(double)clock() / CLOCKS_PER_SEC`.
func (vm *VM) clockNative(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(vm.started).Seconds()), nil
}

// --- runtime errors ---------------------------------------------------------

func (vm *VM) runtimeError(format string, a ...interface{}) error {
	msg := fmt.Sprintf(format, a...)

	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		trace = append(trace, StackFrame{Name: name, Line: fn.Chunk.LineAt(f.ip - 1)})
	}

	vm.resetStack()
	return newRuntimeError(msg, trace)
}

// --- garbage collection ------------------------------------------------

// collectGarbage runs one full mark-sweep cycle (spec §8): mark every
// root-reachable object, trace outward from there, weed dead strings out
// of the intern pool, sweep everything still unmarked, and recompute the
// next collection's threshold.
func (vm *VM) collectGarbage() {
	before := vm.heap.BytesAllocated()
	if vm.logGC {
		fmt.Fprintln(vm.stderr, "-- gc begin")
	}

	var gray []value.Obj
	mark := func(o value.Obj) {
		gray = vm.markObject(o, gray)
	}
	markValue := func(v value.Value) {
		if v.IsObj() && v.AsObj() != nil {
			mark(v.AsObj())
		}
	}

	for i := 0; i < vm.stackTop; i++ {
		markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.NextOpen {
		mark(up)
	}
	vm.globals.Each(func(key table.Key, v value.Value) {
		if o, ok := key.(value.Obj); ok {
			mark(o)
		}
		markValue(v)
	})
	if vm.initString != nil {
		mark(vm.initString)
	}
	vm.heap.MarkGCRoots(mark)

	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		gray = vm.blacken(o, gray)
	}

	vm.heap.Table().RemoveWhite(func(k table.Key) bool {
		o, ok := k.(value.Obj)
		return ok && o.IsMarked()
	})

	vm.sweep()

	vm.nextGC = vm.heap.BytesAllocated() * gcHeapGrowFactor
	if vm.logGC {
		fmt.Fprintf(vm.stderr, "-- gc end   collected %d bytes (from %d to %d) next at %d\n",
			before-vm.heap.BytesAllocated(), before, vm.heap.BytesAllocated(), vm.nextGC)
	}
}

func (vm *VM) markObject(o value.Obj, gray []value.Obj) []value.Obj {
	if o == nil || o.IsMarked() {
		return gray
	}
	o.SetMark(true)
	return append(gray, o)
}

// blacken visits every reference a live object holds, graying whatever it
// finds. String and Native are leaves: no further references to trace.
func (vm *VM) blacken(o value.Obj, gray []value.Obj) []value.Obj {
	mark := func(target value.Obj) {
		if target != nil {
			gray = vm.markObject(target, gray)
		}
	}
	markValue := func(v value.Value) {
		if v.IsObj() && v.AsObj() != nil {
			mark(v.AsObj())
		}
	}

	switch obj := o.(type) {
	case *object.Function:
		if obj.Name != nil {
			mark(obj.Name)
		}
		for _, c := range obj.Chunk.Constants {
			markValue(c)
		}
	case *object.Closure:
		mark(obj.Function)
		for _, up := range obj.Upvalues {
			// OP_CLOSURE fills these slots one by one after pushing the
			// closure, so a collection can see some still unset.
			if up != nil {
				mark(up)
			}
		}
	case *object.Upvalue:
		if obj.Closed {
			markValue(obj.Value)
		}
	case *object.Class:
		mark(obj.Name)
		obj.Methods.Each(func(k table.Key, v value.Value) {
			if s, ok := k.(value.Obj); ok {
				mark(s)
			}
			markValue(v)
		})
	case *object.Instance:
		mark(obj.Class)
		obj.Fields.Each(func(k table.Key, v value.Value) {
			if s, ok := k.(value.Obj); ok {
				mark(s)
			}
			markValue(v)
		})
	case *object.BoundMethod:
		markValue(obj.Receiver)
		mark(obj.Method)
	}
	return gray
}

// sweep walks the heap's object list, reclaiming (unlinking and charging
// back the size of) everything the mark phase didn't reach, and clearing
// the mark bit on everything that survives for the next cycle.
func (vm *VM) sweep() {
	var prev value.Obj
	obj := vm.heap.Objects()
	for obj != nil {
		if obj.IsMarked() {
			obj.SetMark(false)
			prev = obj
			obj = obj.NextObj()
			continue
		}
		unreached := obj
		obj = obj.NextObj()
		if prev != nil {
			prev.SetNextObj(obj)
		} else {
			vm.heap.SetObjects(obj)
		}
		vm.heap.AddBytes(-object.SizeOf(unreached))
	}
}

// maybeCollect runs a cycle when stress mode is on or the byte threshold
// is crossed. It's wired as the heap's OnAlloc hook (see New), so it fires
// on every tracked allocation, just before the new object is linked into
// the heap's object list, regardless of whether the compiler or the
// running program made it; the dispatch loop's own call below is what
// still catches a long run of non-allocating instructions between one
// allocation and the next.
func (vm *VM) maybeCollect() {
	if vm.stressGC || vm.heap.BytesAllocated() > vm.nextGC {
		vm.collectGarbage()
	}
}
