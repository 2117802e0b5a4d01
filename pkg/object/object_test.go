package object

import (
	"testing"

	"github.com/kristofer/smog/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternDedupsEqualBytes(t *testing.T) {
	in := NewInterner()
	a := in.Intern("hello")
	b := in.Intern("hello")
	assert.Same(t, a, b)
}

func TestInternDistinctBytesAreDistinctObjects(t *testing.T) {
	in := NewInterner()
	a := in.Intern("hello")
	b := in.Intern("goodbye")
	assert.NotSame(t, a, b)
}

func TestInternTracksObjectOnHeap(t *testing.T) {
	in := NewInterner()
	before := in.BytesAllocated()
	s := in.Intern("hi")
	assert.Greater(t, in.BytesAllocated(), before)
	assert.Same(t, s, in.Objects())
}

func TestNewClosureTracksFunctionSeparately(t *testing.T) {
	in := NewInterner()
	fn := in.NewFunction()
	fn.Name = in.Intern("greet")
	closure := in.NewClosure(fn)
	assert.Same(t, fn, closure.Function)
	assert.Same(t, closure, in.Objects())
}

func TestNewClassAndInstance(t *testing.T) {
	in := NewInterner()
	name := in.Intern("Pair")
	class := in.NewClass(name)
	instance := in.NewInstance(class)
	assert.Same(t, class, instance.Class)
	assert.Equal(t, "Pair instance", instance.String())
}

func TestNewBoundMethodPairsReceiverAndClosure(t *testing.T) {
	in := NewInterner()
	fn := in.NewFunction()
	closure := in.NewClosure(fn)
	class := in.NewClass(in.Intern("Pair"))
	instance := in.NewInstance(class)
	bound := in.NewBoundMethod(value.FromObj(instance), closure)
	assert.Equal(t, instance, bound.Receiver.AsObj())
	assert.Same(t, closure, bound.Method)
}

func TestFunctionStringUnnamedIsScript(t *testing.T) {
	fn := NewFunction()
	assert.Equal(t, "<script>", fn.String())
}

func TestFunctionStringNamed(t *testing.T) {
	in := NewInterner()
	fn := in.NewFunction()
	fn.Name = in.Intern("add")
	assert.Equal(t, "<fn add>", fn.String())
}

func TestMarkAndSweepBookkeeping(t *testing.T) {
	in := NewInterner()
	s := in.Intern("tracked")
	require.False(t, s.IsMarked())
	s.SetMark(true)
	assert.True(t, s.IsMarked())
}

func TestHashStringIsStableAndDistinguishesInputs(t *testing.T) {
	assert.Equal(t, HashString("abc"), HashString("abc"))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
}

func TestSizeOfGrowsWithStringLength(t *testing.T) {
	short := NewString("a")
	long := NewString("a much longer string of text")
	assert.Less(t, SizeOf(short), SizeOf(long))
}
