package compiler

import (
	"agentus/internal/bytecode"
	"agentus/internal/parser"
)

// compileExpr compiles an expression, returning the register holding
// its result. Locals are returned by register directly (no load);
// everything else materializes into a freshly allocated register
// (grounded on the donor's compileExpr dispatch).
func (c *funcCompiler) compileExpr(expr parser.Expr) int {
	switch e := expr.(type) {
	case *parser.Literal:
		return c.compileLiteral(e)
	case *parser.TemplateExpr:
		return c.compileTemplate(e)
	case *parser.Variable:
		return c.compileVariable(e)
	case *parser.Binary:
		return c.compileBinary(e)
	case *parser.Unary:
		return c.compileUnary(e)
	case *parser.CallExpr:
		return c.compileCall(e)
	case *parser.MethodCallExpr:
		return c.compileMethodCall(e)
	case *parser.FieldAccessExpr:
		return c.compileFieldAccess(e)
	case *parser.IndexExpr:
		return c.compileIndex(e)
	case *parser.ListLit:
		return c.compileListLit(e)
	case *parser.MapLit:
		return c.compileMapLit(e)
	case *parser.ExecExpr:
		return c.compileExec(e)
	case *parser.RecvExpr:
		return c.compileRecv(e)
	case *parser.SelfExpr:
		c.mc.errorf("'self' cannot be used as a value")
		return c.alloc.alloc()
	default:
		c.mc.errorf("internal: compiler has no case for expression %T", expr)
		return c.alloc.alloc()
	}
}

func (c *funcCompiler) compileLiteral(e *parser.Literal) int {
	reg := c.alloc.alloc()
	switch v := e.Value.(type) {
	case nil:
		c.emit(bytecode.CreateABC(bytecode.OpLoadNone, uint8(reg), 0, 0))
	case bool:
		if v {
			c.emit(bytecode.CreateABC(bytecode.OpLoadTrue, uint8(reg), 0, 0))
		} else {
			c.emit(bytecode.CreateABC(bytecode.OpLoadFalse, uint8(reg), 0, 0))
		}
	case float64:
		idx := c.mc.builder.AddNumConstant(v)
		c.emit(bytecode.CreateABx(bytecode.OpLoadConst, uint8(reg), idx))
	case string:
		idx := c.mc.builder.AddStrConstant(v)
		c.emit(bytecode.CreateABx(bytecode.OpLoadConst, uint8(reg), idx))
	default:
		c.mc.errorf("unsupported literal type %T", v)
	}
	return reg
}

// compileTemplate lowers a template literal to a left-to-right fold
// of Concat over its parts (spec §4.3: template literals never
// short-circuit or skip a part).
func (c *funcCompiler) compileTemplate(e *parser.TemplateExpr) int {
	if len(e.Parts) == 0 {
		return c.compileLiteral(&parser.Literal{Value: ""})
	}
	acc := c.compileExpr(e.Parts[0])
	for _, part := range e.Parts[1:] {
		accWasLocked := c.alloc.locked[acc]
		c.alloc.lock(acc)
		next := c.compileExpr(part)
		if !accWasLocked {
			c.alloc.unlock(acc)
		}
		dest := c.alloc.alloc()
		c.emit(bytecode.CreateABC(bytecode.OpConcat, uint8(dest), uint8(acc), uint8(next)))
		if !accWasLocked {
			c.alloc.free(acc)
		}
		c.alloc.free(next)
		acc = dest
	}
	return acc
}

func (c *funcCompiler) compileVariable(e *parser.Variable) int {
	if reg, ok := c.resolveLocal(e.Name); ok {
		return reg
	}
	c.mc.errorf("undefined variable '%s'", e.Name)
	return c.alloc.alloc()
}

var binaryOps = map[string]bytecode.OpCode{
	"+": bytecode.OpAdd, "-": bytecode.OpSub, "*": bytecode.OpMul,
	"/": bytecode.OpDiv, "%": bytecode.OpMod,
	"==": bytecode.OpEq, "!=": bytecode.OpNeq,
	"<": bytecode.OpLt, "<=": bytecode.OpLte, ">": bytecode.OpGt, ">=": bytecode.OpGte,
	"and": bytecode.OpAnd, "or": bytecode.OpOr,
	"++": bytecode.OpConcat,
}

// compileBinary compiles a two-operand expression. Both operands are
// always evaluated — and/or do not short-circuit at the bytecode
// level (spec §4.1: OpAnd/OpOr compute a truthiness-AND/OR over two
// already-evaluated Values, unlike the donor's jump-based
// compileLogicalExpr).
func (c *funcCompiler) compileBinary(e *parser.Binary) int {
	leftReg := c.compileExpr(e.Left)
	leftWasLocked := c.alloc.locked[leftReg]
	c.alloc.lock(leftReg)
	rightReg := c.compileExpr(e.Right)
	if !leftWasLocked {
		c.alloc.unlock(leftReg)
	}
	op, ok := binaryOps[e.Operator]
	if !ok {
		c.mc.errorf("unknown binary operator '%s'", e.Operator)
		op = bytecode.OpNop
	}
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(op, uint8(dest), uint8(leftReg), uint8(rightReg)))
	if !leftWasLocked {
		c.alloc.free(leftReg)
	}
	c.alloc.free(rightReg)
	return dest
}

func (c *funcCompiler) compileUnary(e *parser.Unary) int {
	src := c.compileExpr(e.Operand)
	dest := c.alloc.alloc()
	switch e.Operator {
	case "-":
		c.emit(bytecode.CreateABC(bytecode.OpNeg, uint8(dest), uint8(src), 0))
	case "not":
		c.emit(bytecode.CreateABC(bytecode.OpNot, uint8(dest), uint8(src), 0))
	default:
		c.mc.errorf("unknown unary operator '%s'", e.Operator)
	}
	c.alloc.free(src)
	return dest
}

func (c *funcCompiler) emitMoveIfNeeded(dest, src int) {
	if dest != src {
		c.emit(bytecode.CreateABC(bytecode.OpMove, uint8(dest), uint8(src), 0))
	}
	c.alloc.free(src)
}

// packArgs evaluates receiver (if non-nil) and args into one
// consecutive register run, moving each into place if it didn't
// already land there. Returns the run's base register; the caller is
// responsible for freeing it after emitting the Call/TCall word.
func (c *funcCompiler) packArgs(receiver parser.Expr, args []parser.Expr) int {
	extra := 0
	if receiver != nil {
		extra = 1
	}
	base := c.findConsecutive(extra + len(args))
	if receiver != nil {
		c.emitMoveIfNeeded(base, c.compileExpr(receiver))
	}
	for i, a := range args {
		c.emitMoveIfNeeded(base+extra+i, c.compileExpr(a))
	}
	return base
}

func (c *funcCompiler) freeRun(base, n int) {
	for i := n - 1; i >= 0; i-- {
		c.alloc.free(base + i)
	}
}

// compileCall resolves a bare-name call in the order spec §4.3
// requires: agent constructor, then tool, then function, then an
// undefined-callable error.
func (c *funcCompiler) compileCall(e *parser.CallExpr) int {
	if agentIdx, ok := c.mc.agentIndex[e.Name]; ok {
		if len(e.Args) > 0 {
			c.mc.errorf("agent '%s' takes no constructor arguments", e.Name)
		}
		dest := c.alloc.alloc()
		c.emit(bytecode.CreateABx(bytecode.OpSpawn, uint8(dest), uint16(agentIdx)))
		return dest
	}
	if toolIdx, ok := c.mc.toolIndex[e.Name]; ok {
		base := c.packArgs(nil, e.Args)
		dest := c.alloc.alloc()
		c.emit(bytecode.CreateABx(bytecode.OpTCall, uint8(dest), uint16(toolIdx)))
		c.emit(bytecode.ExtraData(uint8(base), uint8(len(e.Args))))
		c.freeRun(base, len(e.Args))
		return dest
	}
	if fnIdx, ok := c.mc.functionIndex[e.Name]; ok {
		base := c.packArgs(nil, e.Args)
		dest := c.alloc.alloc()
		c.emit(bytecode.CreateABx(bytecode.OpCall, uint8(dest), uint16(fnIdx)))
		c.emit(bytecode.ExtraData(uint8(base), uint8(len(e.Args))))
		c.freeRun(base, len(e.Args))
		return dest
	}
	c.mc.errorf("undefined function or tool")
	return c.alloc.alloc()
}

// compileMethodCall compiles `object.method(args...)`. The target
// function is not resolved at compile time — only the method-name
// constant is emitted — because the receiver's concrete agent
// descriptor is only known at runtime (spec §5: the VM looks up the
// method on the live AgentInstance).
func (c *funcCompiler) compileMethodCall(e *parser.MethodCallExpr) int {
	base := c.packArgs(e.Object, e.Args)
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABx(bytecode.OpCall, uint8(dest), bytecode.MethodCallSentinel))
	c.emit(bytecode.ExtraData(uint8(base), uint8(len(e.Args)+1)))
	methodNameConst := c.mc.builder.AddStrConstant(e.Method)
	c.emit(bytecode.ExtraDataBx(methodNameConst))
	c.freeRun(base, len(e.Args)+1)
	return dest
}

// compileFieldAccess compiles `self.field`; any other object is
// rejected (spec §4.1: field access is restricted to self).
func (c *funcCompiler) compileFieldAccess(e *parser.FieldAccessExpr) int {
	if _, ok := e.Object.(*parser.SelfExpr); !ok {
		c.mc.errorf("field access is only supported on 'self'")
		return c.alloc.alloc()
	}
	// Whether this compiles inside an agent method only controls
	// codegen shape, not validity: MLoad raises "not in an agent
	// context" at runtime for a frame with no owning agent (spec §7).
	dest := c.alloc.alloc()
	fieldConst := c.mc.builder.AddStrConstant(e.Field)
	c.emit(bytecode.CreateABx(bytecode.OpMLoad, uint8(dest), fieldConst))
	return dest
}

func (c *funcCompiler) compileIndex(e *parser.IndexExpr) int {
	objReg := c.compileExpr(e.Object)
	objWasLocked := c.alloc.locked[objReg]
	c.alloc.lock(objReg)
	idxReg := c.compileExpr(e.Index)
	if !objWasLocked {
		c.alloc.unlock(objReg)
	}
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(bytecode.OpIndexGet, uint8(dest), uint8(objReg), uint8(idxReg)))
	if !objWasLocked {
		c.alloc.free(objReg)
	}
	c.alloc.free(idxReg)
	return dest
}

func (c *funcCompiler) compileListLit(e *parser.ListLit) int {
	n := len(e.Elements)
	base := c.findConsecutive(n)
	for i, el := range e.Elements {
		c.emitMoveIfNeeded(base+i, c.compileExpr(el))
	}
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(bytecode.OpNewList, uint8(dest), uint8(base), uint8(n)))
	c.freeRun(base, n)
	return dest
}

// compileMapLit compiles a `{k: v, ...}` literal. NewMap reads C
// key/value pairs out of 2C consecutive registers (spec §4.1); map
// keys are static identifiers or quoted strings in the surface
// grammar, so each key is
// loaded as a Str constant into its half of the pair like any other
// literal.
func (c *funcCompiler) compileMapLit(e *parser.MapLit) int {
	n := len(e.Values)
	base := c.findConsecutive(2 * n)
	for i, key := range e.Keys {
		keyReg := c.compileLiteral(&parser.Literal{Value: key})
		c.emitMoveIfNeeded(base+2*i, keyReg)
		c.emitMoveIfNeeded(base+2*i+1, c.compileExpr(e.Values[i]))
	}
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(bytecode.OpNewMap, uint8(dest), uint8(base), uint8(n)))
	c.freeRun(base, 2*n)
	return dest
}

func (c *funcCompiler) compileExec(e *parser.ExecExpr) int {
	promptReg := c.compileExpr(e.Prompt)
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(bytecode.OpExec, uint8(dest), uint8(promptReg), 0))
	c.alloc.free(promptReg)
	return dest
}

func (c *funcCompiler) compileRecv(e *parser.RecvExpr) int {
	handleReg := c.compileExpr(e.Target)
	dest := c.alloc.alloc()
	c.emit(bytecode.CreateABC(bytecode.OpRecv, uint8(dest), uint8(handleReg), 0))
	c.alloc.free(handleReg)
	return dest
}
