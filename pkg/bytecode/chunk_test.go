package bytecode

import (
	"bytes"
	"testing"

	"github.com/kristofer/smog/pkg/value"
	"github.com/stretchr/testify/assert"
)

func TestChunkWriteTracksLines(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpTrue, 2)
	assert.Equal(t, []byte{byte(OpNil), byte(OpTrue)}, c.Code)
	assert.Equal(t, []int{1, 2}, c.Lines)
}

func TestChunkAddConstantReturnsIndex(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(value.Number(42))
	assert.Equal(t, 0, idx)
	assert.Equal(t, 42.0, c.ConstantAt(idx).AsNumber())
}

func TestChunkLineAtOutOfRange(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNil, 7)
	assert.Equal(t, -1, c.LineAt(-1))
	assert.Equal(t, -1, c.LineAt(5))
	assert.Equal(t, 7, c.LineAt(0))
}

func TestOpStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "OP_RETURN", OpReturn.String())
	assert.Equal(t, "OP_UNKNOWN", Op(255).String())
}

func TestDisassembleInstructionAdvancesByOperandWidth(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(value.Number(3))
	c.WriteOp(OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(OpReturn, 1)

	var buf bytes.Buffer
	next := DisassembleInstruction(&buf, c, 0)
	assert.Equal(t, 2, next)
	assert.Contains(t, buf.String(), "OP_CONSTANT")
	assert.Contains(t, buf.String(), "'3'")
}

func TestDisassembleListsEveryInstruction(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 1)

	var buf bytes.Buffer
	Disassemble(&buf, c, "<script>")
	out := buf.String()
	assert.Contains(t, out, "== <script> ==")
	assert.Contains(t, out, "OP_NIL")
	assert.Contains(t, out, "OP_RETURN")
}
