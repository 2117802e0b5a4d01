// Package object implements the heap object kinds smog allocates: strings,
// functions, natives, upvalues, closures, classes, instances, and bound
// methods. Every kind embeds Obj, the GC's intrusive bookkeeping (kind tag,
// object-list link, mark bit) described by spec §3 "Heap object (base)".
//
// Dynamic dispatch on object kind (printing, equality, GC tracing, freeing)
// is expressed as a closed set of kind constants and a type switch at each
// call site, not Go interface polymorphism beyond the minimal value.Obj
// contract — keeping the variant closed is what lets the collector reason
// about exactly eight shapes.
package object

import (
	"fmt"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Kind tags identify which struct a value.Obj really is without a type
// assertion chain at every use site.
type Kind byte

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindUpvalue
	KindClosure
	KindClass
	KindInstance
	KindBoundMethod
)

// Obj is the base every heap object embeds. Next threads every live object
// into the VM's intrusive allocation list (the sweep phase walks it);
// Marked is the collector's mark bit, which the sweep clears on every
// object it keeps.
type Obj struct {
	Next   value.Obj
	Marked bool
}

func (o *Obj) IsMarked() bool       { return o.Marked }
func (o *Obj) SetMark(m bool)       { o.Marked = m }
func (o *Obj) NextObj() value.Obj   { return o.Next }
func (o *Obj) SetNextObj(n value.Obj) { o.Next = n }

// String is an immutable, interned byte sequence. Two live Strings are
// never equal-but-distinct: the string pool (package table, used as the
// intern table) guarantees at most one live String per byte sequence, so
// `==` at the language level is pointer identity at the object level.
type String struct {
	Obj
	Chars string
	Hash  uint32
}

func (s *String) ObjKind() byte   { return byte(KindString) }
func (s *String) String() string  { return s.Chars }
func (s *String) KeyChars() string { return s.Chars }
func (s *String) KeyHash() uint32  { return s.Hash }

// HashString computes the FNV-1a hash spec §3 requires for String and for
// probing package table.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// NewString builds a fresh (not yet interned) String object. Callers going
// through the VM's intern table should prefer Interner.Intern, which dedups
// via table.FindString before allocating.
func NewString(chars string) *String {
	return &String{Chars: chars, Hash: HashString(chars)}
}

var _ table.Key = (*String)(nil)

// Interner is both the shared string pool and the VM's allocation ledger.
// The compiler interns identifier and literal text into it while emitting
// bytecode; the VM interns strings produced at runtime (concatenation)
// into the very same pool, so `==` between two guest strings is
// always pointer identity. Every object ever allocated through it —
// compile-time or run-time — is threaded onto one intrusive list via
// Obj.Next, so the VM's collector has a single population to mark and
// sweep regardless of which phase created an object.
type Interner struct {
	strings        *table.Table
	objects        value.Obj
	bytesAllocated int

	onAlloc func()
	gcRoots func(mark func(value.Obj))
}

// NewInterner returns an empty string pool / object heap.
func NewInterner() *Interner {
	return &Interner{strings: table.New()}
}

// Intern returns the canonical *String for chars, allocating and
// registering one if this is the first time chars has been seen.
func (in *Interner) Intern(chars string) *String {
	hash := HashString(chars)
	if key, ok := in.strings.FindString(chars, hash); ok {
		return key.(*String)
	}
	s := NewString(chars)
	in.track(s)
	in.strings.Set(s, value.Bool(true))
	return s
}

// Table exposes the underlying table so the VM can mark it as a GC root and
// run RemoveWhite against it after the mark phase.
func (in *Interner) Table() *table.Table { return in.strings }

// track links a freshly allocated object onto the heap's object list and
// adds its approximate size to the running total. Every New* constructor
// below (and Intern, above) routes through it. Objects built without the
// Interner (the package-level constructors, or a struct literal such as the
// VM's native functions) are not on the list and are never swept.
func (in *Interner) track(o value.Obj) {
	// onAlloc runs before o joins the tracked list, mirroring the original's
	// reallocate-before-allocateObject order: a collection triggered here
	// can't find (and so can't sweep) an object that isn't linked in yet,
	// regardless of whether anything has had the chance to root it.
	if in.onAlloc != nil {
		in.onAlloc()
	}
	in.bytesAllocated += SizeOf(o)
	o.SetNextObj(in.objects)
	in.objects = o
}

// SetOnAlloc installs a callback that track runs for every allocation,
// just before the new object joins the object list, whether it happened
// during compilation or execution. The VM wires its
// own threshold check here so a collection can fire at the same
// granularity in both phases, rather than only once execution begins.
// Pass nil to clear it.
func (in *Interner) SetOnAlloc(f func()) { in.onAlloc = f }

// SetGCRoots installs a callback a collector invokes during its mark
// phase to contribute roots beyond whatever the VM's own stack, frames,
// and globals already cover. The compiler uses this to keep its
// in-progress functions alive across a collection that fires mid-compile,
// before any of them are reachable from a closure or call frame. Pass nil
// to clear it.
func (in *Interner) SetGCRoots(f func(mark func(value.Obj))) { in.gcRoots = f }

// MarkGCRoots invokes the installed root callback, if any.
func (in *Interner) MarkGCRoots(mark func(value.Obj)) {
	if in.gcRoots != nil {
		in.gcRoots(mark)
	}
}

// Objects returns the head of the intrusive all-objects list the sweep
// phase walks.
func (in *Interner) Objects() value.Obj { return in.objects }

// SetObjects replaces the head of the object list; the sweeper calls this
// once per collection with whatever survived.
func (in *Interner) SetObjects(head value.Obj) { in.objects = head }

// BytesAllocated is the running total the collector compares against its
// next-collection threshold.
func (in *Interner) BytesAllocated() int { return in.bytesAllocated }

// AddBytes adjusts the running total; the sweeper calls it with a negative
// delta for every object it reclaims.
func (in *Interner) AddBytes(delta int) { in.bytesAllocated += delta }

// NewFunction allocates a Function on the heap, tracked for GC.
func (in *Interner) NewFunction() *Function {
	fn := NewFunction()
	in.track(fn)
	return fn
}

// NewClosure allocates a Closure wrapping fn, tracked for GC.
func (in *Interner) NewClosure(fn *Function) *Closure {
	c := NewClosure(fn)
	in.track(c)
	return c
}

// NewUpvalue allocates an open Upvalue over the given stack location,
// tracked for GC.
func (in *Interner) NewUpvalue(location int) *Upvalue {
	u := &Upvalue{Location: location}
	in.track(u)
	return u
}

// NewClass allocates a Class, tracked for GC.
func (in *Interner) NewClass(name *String) *Class {
	cl := NewClass(name)
	in.track(cl)
	return cl
}

// NewInstance allocates an Instance of class, tracked for GC.
func (in *Interner) NewInstance(class *Class) *Instance {
	i := NewInstance(class)
	in.track(i)
	return i
}

// NewBoundMethod allocates a BoundMethod, tracked for GC.
func (in *Interner) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	in.track(b)
	return b
}

// SizeOf estimates an object's heap footprint in bytes, used to drive the
// collector's grow-by-factor threshold (spec §8). The numbers are rough
// struct-size approximations, not exact allocator accounting — Go's own
// allocator owns real memory layout; this total only has to grow and
// shrink in proportion to what's live, the way the original byte counter
// does against malloc/free. Exported so the VM's sweep phase can charge
// back exactly what track charged, instead of keeping a second estimate
// in sync by hand.
func SizeOf(o value.Obj) int {
	switch v := o.(type) {
	case *String:
		return 24 + len(v.Chars)
	case *Function:
		return 48
	case *Native:
		return 32
	case *Upvalue:
		return 40
	case *Closure:
		return 24 + 8*len(v.Upvalues)
	case *Class:
		return 32
	case *Instance:
		return 32
	case *BoundMethod:
		return 32
	default:
		return 16
	}
}

// FunctionKind distinguishes the four contexts a compiled function body can
// be compiled for — it governs whether slot 0 is a receiver, and whether a
// bare `return` with a value is legal (spec §4.2, §7).
type FunctionKind byte

const (
	FuncScript FunctionKind = iota
	FuncFunction
	FuncMethod
	FuncInitializer
)

// Function is a compiled script or `fun`/method body: its arity, how many
// upvalues its closures must allocate, an optional name (nil for the
// top-level script), and the chunk of bytecode that implements it.
type Function struct {
	Obj
	Name         *String
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
}

func NewFunction() *Function {
	return &Function{Chunk: bytecode.NewChunk()}
}

func (f *Function) ObjKind() byte { return byte(KindFunction) }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a host-language callable: a slice view over its arguments on
// the VM stack, returning a result Value or an error.
type NativeFn func(args []value.Value) (value.Value, error)

// Native wraps a host function so it can be called like any other guest
// callable through OP_CALL.
type Native struct {
	Obj
	Name string
	Fn   NativeFn
}

func (n *Native) ObjKind() byte  { return byte(KindNative) }
func (n *Native) String() string { return "<native fn>" }

// Upvalue is a slot that either points at a live stack location (open,
// Closed == false) or owns a copied Value after its frame returned
// (closed, Closed == true). Location is the absolute stack index while
// open; it is meaningless once closed. Open upvalues form a singly linked
// list via NextOpen, sorted by descending stack address (spec §3
// invariant 4) so multiple closures capturing the same slot share one
// Upvalue.
type Upvalue struct {
	Obj
	Location int
	Closed   bool
	Value    value.Value
	NextOpen *Upvalue
}

func (u *Upvalue) ObjKind() byte  { return byte(KindUpvalue) }
func (u *Upvalue) String() string { return "upvalue" }

// Closure pairs a Function with the array of Upvalues its body captured.
// It — never a bare Function — is the callable guest code actually
// invokes; spec §3 invariant 5 requires len(Upvalues) == Function.UpvalueCount
// and every slot populated before the closure is observable.
type Closure struct {
	Obj
	Function *Function
	Upvalues []*Upvalue
}

func NewClosure(fn *Function) *Closure {
	return &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
}

func (c *Closure) ObjKind() byte  { return byte(KindClosure) }
func (c *Closure) String() string { return c.Function.String() }

// Class holds a name and its method table (selector name -> Closure).
// Inheritance (OP_INHERIT) copies a superclass's Methods wholesale into
// the subclass's, so method lookup is always a single table probe.
type Class struct {
	Obj
	Name    *String
	Methods *table.Table
}

func NewClass(name *String) *Class {
	return &Class{Name: name, Methods: table.New()}
}

func (c *Class) ObjKind() byte  { return byte(KindClass) }
func (c *Class) String() string { return c.Name.Chars }

// Instance is a Class reference plus a field table (field name -> Value),
// populated lazily by OP_SET_PROPERTY as the guest program assigns fields.
type Instance struct {
	Obj
	Class  *Class
	Fields *table.Table
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: table.New()}
}

func (i *Instance) ObjKind() byte  { return byte(KindInstance) }
func (i *Instance) String() string { return i.Class.Name.Chars + " instance" }

// BoundMethod captures a receiver/closure pair produced by `instance.method`
// (spec §3 invariant 6: calling it is equivalent to calling Method with the
// receiver pre-loaded into call-frame slot 0).
type BoundMethod struct {
	Obj
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) ObjKind() byte  { return byte(KindBoundMethod) }
func (b *BoundMethod) String() string { return b.Method.String() }
