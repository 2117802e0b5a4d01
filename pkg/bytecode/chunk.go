// Package bytecode defines the instruction set and the Chunk container the
// compiler emits into and the VM executes out of.
//
// Architecture:
//
// Smog bytecode is a flat byte stream, not the teacher's original
// []Instruction slice of (Opcode, int) pairs — spec §4.2's jump-patching
// obligation (writing a big-endian 16-bit distance into two placeholder
// bytes after the fact) needs byte-level addressing that a fixed-shape
// instruction struct can't express. Each opcode is one byte, followed by
// zero, one, or two explicit operand bytes depending on the opcode; 16-bit
// operands are big-endian.
//
// A Chunk carries three parallel views of one compiled unit: the code
// bytes themselves, a per-byte source line table (for runtime error
// stack traces), and a constant pool of values referenced by index.
package bytecode

import "github.com/kristofer/smog/pkg/value"

// Op is a single-byte instruction opcode.
type Op byte

const (
	OpConstant Op = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetUpvalue
	OpSetUpvalue
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
)

var opNames = [...]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

// String returns the opcode's mnemonic, used by the disassembler and by
// runtime-error diagnostics.
func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "OP_UNKNOWN"
}

// Chunk is a compiled unit of bytecode: one per Function.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

// NewChunk returns an empty chunk ready for the compiler to emit into.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends one byte with its source line and returns the offset it
// was written at.
func (c *Chunk) Write(b byte, line int) int {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Op, line int) int {
	return c.Write(byte(op), line)
}

// AddConstant appends v to the constant pool and returns its index.
// Callers (the compiler) are responsible for enforcing the 256-entry
// cap spec §4.2 requires (one chunk's OP_CONSTANT operand is one byte).
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// ConstantAt returns the constant at index i.
func (c *Chunk) ConstantAt(i int) value.Value {
	return c.Constants[i]
}

// LineAt returns the source line recorded for the byte at offset i, used
// to annotate runtime-error stack traces.
func (c *Chunk) LineAt(i int) int {
	if i < 0 || i >= len(c.Lines) {
		return -1
	}
	return c.Lines[i]
}
