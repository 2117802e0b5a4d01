// Package value defines the tagged-union runtime value representation for
// smog. A Value is the thing that lives on the VM's stack, in the constant
// pool, and in every local/global/field/upvalue slot.
//
// Go has no native union-of-float64-and-pointer the way the original C
// implementation's `Value` does (a tagged union overlaying a double and an
// object pointer in one word). Value is instead a small tagged struct: a
// Kind byte plus one float64 field and one Obj-interface field, never both
// meaningful at once. Booleans live in the Num field (0 or 1) rather than
// adding a fourth payload field, keeping the struct the same size as the
// teacher's own preference for small explicit structs over interface{}.
package value

import "fmt"

// Kind identifies which of Value's four shapes is populated.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Obj is implemented by every heap object kind in package object. It is
// declared here (rather than imported from package object) to avoid an
// import cycle: object needs to embed Values in constant pools and field
// tables, and value needs to hold Obj references.
type Obj interface {
	// ObjKind distinguishes String, Function, Native, Closure, Upvalue,
	// Class, Instance, BoundMethod at runtime without a type switch on
	// every caller — see package object's Kind type for the concrete set.
	ObjKind() byte
	String() string

	// The remaining methods are the collector's intrusive bookkeeping:
	// every concrete type gets them for free by embedding object.Obj,
	// which is what lets the VM mark/sweep across all eight kinds through
	// this one interface instead of a type switch per GC primitive.
	IsMarked() bool
	SetMark(bool)
	NextObj() Obj
	SetNextObj(Obj)
}

// Value is freely copied by value; an Obj payload is a non-owning
// reference, ownership of the referent lives with the garbage collector.
type Value struct {
	Kind Kind
	Num  float64
	Obj  Obj
}

func Nil() Value { return Value{Kind: KindNil} }

func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, Num: 1}
	}
	return Value{Kind: KindBool, Num: 0}
}

func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func FromObj(o Obj) Value    { return Value{Kind: KindObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

func (v Value) AsBool() bool      { return v.Num != 0 }
func (v Value) AsNumber() float64 { return v.Num }
func (v Value) AsObj() Obj        { return v.Obj }

// IsObjKind reports whether v holds a heap object of the given kind.
func (v Value) IsObjKind(k byte) bool {
	return v.Kind == KindObj && v.Obj != nil && v.Obj.ObjKind() == k
}

// Falsy implements the language's truthiness rule: nil and false are
// falsy, everything else (including 0 and the empty string) is truthy.
func (v Value) Falsy() bool {
	return v.Kind == KindNil || (v.Kind == KindBool && v.Num == 0)
}

// Equal implements same-type value equality: booleans and numbers by
// value, nils always equal, heap references by pointer identity (safe
// because strings are interned, so equal bytes share one object).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Num == b.Num
	case KindNumber:
		return a.Num == b.Num
	case KindObj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// String formats a Value the way OP_PRINT and the disassembler do:
// numbers via Go's shortest round-trip formatting, booleans as
// true/false, nil as nil, and heap objects deferring to their own
// String method (strings as raw bytes, instances as "Name instance",
// functions/closures/natives with their own spellings).
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindObj:
		if v.Obj == nil {
			return "nil"
		}
		return v.Obj.String()
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	return fmt.Sprintf("%g", n)
}
