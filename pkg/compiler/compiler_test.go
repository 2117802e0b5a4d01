package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, source string) *object.Function {
	t.Helper()
	var errs strings.Builder
	fn, ok := Compile(source, object.NewInterner(), &errs)
	require.Truef(t, ok, "unexpected compile error(s): %s", errs.String())
	return fn
}

func opsOf(fn *object.Function) []bytecode.Op {
	var ops []bytecode.Op
	code := fn.Chunk.Code
	for i := 0; i < len(code); {
		op := bytecode.Op(code[i])
		ops = append(ops, op)
		switch op {
		case bytecode.OpConstant, bytecode.OpGetGlobal, bytecode.OpDefineGlobal,
			bytecode.OpSetGlobal, bytecode.OpGetProperty, bytecode.OpSetProperty,
			bytecode.OpGetSuper, bytecode.OpClass, bytecode.OpMethod,
			bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue,
			bytecode.OpSetUpvalue, bytecode.OpCall:
			i += 2
		case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpLoop:
			i += 3
		case bytecode.OpInvoke, bytecode.OpSuperInvoke:
			i += 3
		case bytecode.OpClosure:
			upvalueCount := int(code[i+2])
			i += 3 + 2*upvalueCount
		default:
			i++
		}
	}
	return ops
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := compileOK(t, "42;")
	assert.Equal(t, []bytecode.Op{bytecode.OpConstant, bytecode.OpPop, bytecode.OpNil, bytecode.OpReturn}, opsOf(fn))
	require.Len(t, fn.Chunk.Constants, 1)
	assert.Equal(t, 42.0, fn.Chunk.Constants[0].AsNumber())
}

func TestCompileStringLiteralInterned(t *testing.T) {
	interner := object.NewInterner()
	var errs strings.Builder
	fn, ok := Compile(`"hi"; "hi";`, interner, &errs)
	require.True(t, ok)
	require.Len(t, fn.Chunk.Constants, 2)
	// Equal source text interns to the very same String object.
	assert.Same(t, fn.Chunk.Constants[0].AsObj(), fn.Chunk.Constants[1].AsObj())
}

func TestCompileGlobalVarDeclaration(t *testing.T) {
	fn := compileOK(t, "var x = 1;")
	assert.Contains(t, opsOf(fn), bytecode.OpDefineGlobal)
}

func TestCompileLocalVarNoGlobalOps(t *testing.T) {
	fn := compileOK(t, "{ var x = 1; print x; }")
	ops := opsOf(fn)
	assert.NotContains(t, ops, bytecode.OpDefineGlobal)
	assert.Contains(t, ops, bytecode.OpGetLocal)
}

func TestCompileIfElse(t *testing.T) {
	fn := compileOK(t, `if (true) { print 1; } else { print 2; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, bytecode.OpJumpIfFalse)
	assert.Contains(t, ops, bytecode.OpJump)
	assert.Contains(t, ops, bytecode.OpPrint)
}

func TestCompileWhileLoop(t *testing.T) {
	fn := compileOK(t, `while (false) { print 1; }`)
	assert.Contains(t, opsOf(fn), bytecode.OpLoop)
}

func TestCompileForLoopDesugarsToLoop(t *testing.T) {
	fn := compileOK(t, `for (var i = 0; i < 1; i = i + 1) { print i; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, bytecode.OpLoop)
	assert.Contains(t, ops, bytecode.OpJumpIfFalse)
}

func TestCompileFunctionClosure(t *testing.T) {
	fn := compileOK(t, `fun outer() { var x = 1; fun inner() { return x; } return inner; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, bytecode.OpClosure)
	assert.Contains(t, ops, bytecode.OpDefineGlobal)
}

func TestCompileClassWithMethodsAndInheritance(t *testing.T) {
	fn := compileOK(t, `
		class Base {
			speak() { return "base"; }
		}
		class Derived extends Base {
			speak() { return super.speak(); }
		}
	`)
	ops := opsOf(fn)
	assert.Contains(t, ops, bytecode.OpClass)
	assert.Contains(t, ops, bytecode.OpMethod)
	assert.Contains(t, ops, bytecode.OpInherit)
	// super.speak() is compiled into the method's own chunk, which sits in
	// the script's constant pool.
	var methodOps []bytecode.Op
	for _, k := range fn.Chunk.Constants {
		if f, ok := k.AsObj().(*object.Function); ok {
			methodOps = append(methodOps, opsOf(f)...)
		}
	}
	assert.Contains(t, methodOps, bytecode.OpSuperInvoke)
}

func TestCompileThisOutsideClassIsError(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`print this;`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Can't use 'this' outside of a class.")
}

func TestCompileReturnAtTopLevelIsError(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`return 1;`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Can't return from top-level code.")
}

func TestCompileSyntaxErrorRecoversAndReportsLine(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile("var x = ;\nvar y = 1;", object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "[line 1]")
}

func TestCompileInvalidAssignmentTarget(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`1 = 2;`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Invalid assignment target.")
}

func TestCompileTooManyConstantsIsError(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 257; i++ {
		fmt.Fprintf(&src, "%d;\n", i)
	}
	var errs strings.Builder
	_, ok := Compile(src.String(), object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Too many constants in one chunk.")
}

func TestCompileJumpTooFarIsError(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 40000; i++ {
		body.WriteString("nil;")
	}
	source := "if (true) {" + body.String() + "}"
	var errs strings.Builder
	_, ok := Compile(source, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Too much code to jump over.")
}

func TestCompileSelfInitializationIsError(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`{ var x = x; }`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Can't read local variable in its own initializer.")
}

func TestCompileInitializerReturningValueIsError(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`class C { init() { return 1; } }`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "Can't return a value from an initializer.")
}

func TestCompileSelfInheritingClassIsError(t *testing.T) {
	var errs strings.Builder
	_, ok := Compile(`class C extends C {}`, object.NewInterner(), &errs)
	assert.False(t, ok)
	assert.Contains(t, errs.String(), "A class can't inherit from itself.")
}
