// Package compiler turns smog source directly into bytecode: lexing,
// Pratt-parsing expressions, and emission happen in one forward pass, with
// no intermediate AST (spec §4.2). Declarations are mutually recursive with
// statements and expressions the same way the grammar is.
package compiler

import (
	"fmt"
	"io"
	"strconv"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/lexer"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

// maxLocals bounds how many locals (and upvalues) a single function may
// have live at once: OP_GET_LOCAL/OP_GET_UPVALUE address a slot with one
// operand byte.
const maxLocals = 256

// maxArgs is the largest argument/parameter count a single OP_CALL's count
// byte can carry.
const maxArgs = 255

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, precCall},
		lexer.TokenDot:          {nil, (*Compiler).dot, precCall},
		lexer.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, precTerm},
		lexer.TokenPlus:         {nil, (*Compiler).binary, precTerm},
		lexer.TokenSlash:        {nil, (*Compiler).binary, precFactor},
		lexer.TokenStar:         {nil, (*Compiler).binary, precFactor},
		lexer.TokenBang:         {(*Compiler).unary, nil, precNone},
		lexer.TokenBangEqual:    {nil, (*Compiler).binary, precEquality},
		lexer.TokenEqualEqual:   {nil, (*Compiler).binary, precEquality},
		lexer.TokenGreater:      {nil, (*Compiler).binary, precComparison},
		lexer.TokenGreaterEqual: {nil, (*Compiler).binary, precComparison},
		lexer.TokenLess:         {nil, (*Compiler).binary, precComparison},
		lexer.TokenLessEqual:    {nil, (*Compiler).binary, precComparison},
		lexer.TokenIdentifier:   {(*Compiler).variable, nil, precNone},
		lexer.TokenString:       {(*Compiler).string, nil, precNone},
		lexer.TokenNumber:       {(*Compiler).number, nil, precNone},
		lexer.TokenAnd:          {nil, (*Compiler).and, precAnd},
		lexer.TokenOr:           {nil, (*Compiler).or, precOr},
		lexer.TokenFalse:        {(*Compiler).literal, nil, precNone},
		lexer.TokenNil:          {(*Compiler).literal, nil, precNone},
		lexer.TokenTrue:         {(*Compiler).literal, nil, precNone},
		lexer.TokenSuper:        {(*Compiler).super, nil, precNone},
		lexer.TokenThis:         {(*Compiler).this, nil, precNone},
	}
}

func getRule(t lexer.TokenType) parseRule {
	return rules[t]
}

// local tracks one declared-but-maybe-not-yet-visible local variable slot.
type local struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcState is one function body's compilation state: its own locals,
// upvalues, and the chunk it is emitting into. funcStates nest via
// enclosing, one per lexically enclosing fun/method/script.
type funcState struct {
	enclosing  *funcState
	function   *object.Function
	kind       object.FunctionKind
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// classState tracks whether the class currently being compiled has a
// superclass, so `super` can be rejected outside of one.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler is a single-use single-pass compiler: one Compiler compiles one
// top-level script, descending into nested funcStates for every fun,
// method, and initializer body it encounters.
type Compiler struct {
	lex       *lexer.Lexer
	current   lexer.Token
	previous  lexer.Token
	hadError  bool
	panicMode bool
	errOut    io.Writer

	interner *object.Interner

	fn    *funcState
	class *classState
}

// Compile compiles source into a top-level script Function. The second
// result is false if any compile error was reported (to errOut); the
// returned function is nil in that case.
func Compile(source string, interner *object.Interner, errOut io.Writer) (*object.Function, bool) {
	c := &Compiler{
		lex:      lexer.New(source),
		errOut:   errOut,
		interner: interner,
	}
	// Registering markRoots here, for the duration of this single compile,
	// is the whole interface between compiler and collector (spec §9): a
	// collection that fires mid-compile (interner.SetOnAlloc, wired by the
	// VM) can only see the functions on the VM's own stack and frames,
	// which is none of them yet — nothing compiled so far has been wrapped
	// in a closure or pushed anywhere. markRoots below is what keeps the
	// active chain of funcStates, and everything their chunks' constant
	// pools already hold, alive across that collection.
	interner.SetGCRoots(c.markRoots)
	defer interner.SetGCRoots(nil)

	c.initFuncState(object.FuncScript)

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	fn := c.endFuncState()
	if c.hadError {
		return nil, false
	}
	return fn, true
}

// markRoots marks the Function belonging to every funcState currently on
// the enclosing chain, from the innermost body being compiled out to the
// top-level script. Each Function's own Chunk.Constants (already-compiled
// nested functions among them) gets traced from there during blacken, the
// same way a live Closure's Function does once execution starts.
func (c *Compiler) markRoots(mark func(value.Obj)) {
	for fs := c.fn; fs != nil; fs = fs.enclosing {
		mark(fs.function)
	}
}

func (c *Compiler) initFuncState(kind object.FunctionKind) {
	fs := &funcState{
		enclosing: c.fn,
		function:  c.interner.NewFunction(),
		kind:      kind,
	}
	c.fn = fs
	if kind != object.FuncScript {
		fs.function.Name = c.interner.Intern(c.previous.Lexeme)
	}
	// Slot 0 is reserved for the receiver in methods/initializers, and for
	// the (inaccessible) called closure itself in plain functions/scripts.
	recv := lexer.Token{Lexeme: ""}
	if kind != object.FuncFunction && kind != object.FuncScript {
		recv.Lexeme = "this"
	}
	fs.locals = append(fs.locals, local{name: recv, depth: 0})
}

func (c *Compiler) endFuncState() *object.Function {
	c.emitReturn()
	fn := c.fn.function
	fn.UpvalueCount = len(c.fn.upvalues)
	c.fn = c.fn.enclosing
	return fn
}

func (c *Compiler) chunk() *bytecode.Chunk { return c.fn.function.Chunk }

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) error(message string)          { c.errorAt(c.previous, message) }

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	fmt.Fprintf(c.errOut, "[line %d] Error", tok.Line)
	switch tok.Type {
	case lexer.TokenEOF:
		fmt.Fprint(c.errOut, " at end")
	case lexer.TokenError:
		// no extra location detail: the lexeme already is the message
	default:
		fmt.Fprintf(c.errOut, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(c.errOut, ": %s\n", message)
	c.hadError = true
}

// --- emission -----------------------------------------------------------

func (c *Compiler) emitByte(b byte)       { c.chunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op bytecode.Op) { c.chunk().WriteOp(op, c.previous.Line) }

func (c *Compiler) emitOpByte(op bytecode.Op, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	if c.fn.kind == object.FuncInitializer {
		c.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(bytecode.OpConstant, c.makeConstant(v))
}

// emitJump emits a jump opcode with a two-byte placeholder offset and
// returns the offset of the placeholder's first byte, to be patched later.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// --- expressions ----------------------------------------------------

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= precAssignment
	prefix(c, canAssign)

	for p <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(canAssign bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func (c *Compiler) string(canAssign bool) {
	c.emitConstant(value.FromObj(c.interner.Intern(c.previous.Lexeme)))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case lexer.TokenNil:
		c.emitOp(bytecode.OpNil)
	case lexer.TokenTrue:
		c.emitOp(bytecode.OpTrue)
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(canAssign bool) {
	opType := c.previous.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNegate)
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)
	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide)
	}
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOpByte(bytecode.OpCall, argCount)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(lexer.TokenEqual):
		c.expression()
		c.emitOpByte(bytecode.OpSetProperty, name)
	case c.match(lexer.TokenLeftParen):
		argCount := c.argumentList()
		c.emitOpByte(bytecode.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(bytecode.OpGetProperty, name)
	}
}

func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if argCount == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

func syntheticToken(text string) lexer.Token { return lexer.Token{Lexeme: text} }

func (c *Compiler) this(canAssign bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super(canAssign bool) {
	switch {
	case c.class == nil:
		c.error("Can't use 'super' outside of a class.")
	case !c.class.hasSuperclass:
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	c.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(syntheticToken("this"), false)
	if c.match(lexer.TokenLeftParen) {
		argCount := c.argumentList()
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(syntheticToken("super"), false)
		c.emitOpByte(bytecode.OpGetSuper, name)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp bytecode.Op
	arg, ok := c.resolveLocal(c.fn, name)
	if ok {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if arg, ok = c.resolveUpvalue(c.fn, name); ok {
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// --- variable resolution ----------------------------------------------

func (c *Compiler) identifierConstant(name lexer.Token) byte {
	return c.makeConstant(value.FromObj(c.interner.Intern(name.Lexeme)))
}

func (c *Compiler) resolveLocal(fs *funcState, name lexer.Token) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := &fs.locals[i]
		if l.name.Lexeme == name.Lexeme {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) resolveUpvalue(fs *funcState, name lexer.Token) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if localIdx, ok := c.resolveLocal(fs.enclosing, name); ok {
		fs.enclosing.locals[localIdx].isCaptured = true
		return c.addUpvalue(fs, byte(localIdx), true), true
	}
	if up, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, byte(up), false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) == maxLocals {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

func (c *Compiler) declareVariable() {
	if c.fn.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := &c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.error("Variable with this name already declared in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name lexer.Token) {
	if len(c.fn.locals) == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
}

func (c *Compiler) parseVariable(errMessage string) byte {
	c.consume(lexer.TokenIdentifier, errMessage)
	c.declareVariable()
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, global)
}

// --- scopes -------------------------------------------------------------

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	for len(c.fn.locals) > 0 && c.fn.locals[len(c.fn.locals)-1].depth > c.fn.scopeDepth {
		if c.fn.locals[len(c.fn.locals)-1].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		c.fn.locals = c.fn.locals[:len(c.fn.locals)-1]
	}
}

// --- declarations and statements -----------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(c.previous)
	c.declareVariable()

	c.emitOpByte(bytecode.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.match(lexer.TokenExtends) {
		c.consume(lexer.TokenIdentifier, "Expect superclass name.")
		c.variable(false)

		if c.previous.Lexeme == className.Lexeme {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(bytecode.OpInherit)
		cs.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.method()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
	c.emitOp(bytecode.OpPop)

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *Compiler) method() {
	c.consume(lexer.TokenIdentifier, "Expect method name.")
	constant := c.identifierConstant(c.previous)

	kind := object.FuncMethod
	if c.previous.Lexeme == "init" {
		kind = object.FuncInitializer
	}
	c.function(kind)
	c.emitOpByte(bytecode.OpMethod, constant)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(object.FuncFunction)
	c.defineVariable(global)
}

// function compiles a fun/method/initializer body into its own nested
// funcState, then emits an OP_CLOSURE in the enclosing chunk capturing it.
// The upvalue count follows the function's constant index explicitly
// (rather than being read back off the Function object) so the bytecode
// package can disassemble OP_CLOSURE without importing package object.
func (c *Compiler) function(kind object.FunctionKind) {
	c.initFuncState(kind)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	upvalues := c.fn.upvalues
	fn := c.endFuncState()

	c.emitOpByte(bytecode.OpClosure, c.makeConstant(value.FromObj(fn)))
	c.emitByte(byte(len(upvalues)))
	for _, u := range upvalues {
		if u.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(u.index)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fn.kind == object.FuncScript {
		c.error("Can't return from top-level code.")
	}
	switch {
	case c.match(lexer.TokenSemicolon):
		c.emitReturn()
	default:
		if c.fn.kind == object.FuncInitializer {
			c.error("Can't return a value from an initializer.")
		}
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
		c.emitOp(bytecode.OpReturn)
	}
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.endScope()
}

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}
