package compiler

import (
	"agentus/internal/bytecode"
	"agentus/internal/parser"
)

func (c *funcCompiler) compileStmt(stmt parser.Stmt) {
	switch s := stmt.(type) {
	case *parser.LetStmt:
		c.compileLetStmt(s)
	case *parser.AssignStmt:
		c.compileAssignStmt(s)
	case *parser.FieldAssignStmt:
		c.compileFieldAssignStmt(s)
	case *parser.EmitStmt:
		c.compileEmitStmt(s)
	case *parser.ReturnStmt:
		c.compileReturnStmt(s)
	case *parser.ExprStmt:
		reg := c.compileExpr(s.Expr)
		c.alloc.free(reg)
	case *parser.IfStmt:
		c.compileIfStmt(s)
	case *parser.WhileStmt:
		c.compileWhileStmt(s)
	case *parser.ForInStmt:
		c.compileForInStmt(s)
	case *parser.SendStmt:
		c.compileSendStmt(s)
	case *parser.FnDefStmt, *parser.AgentDefStmt, *parser.ToolDefStmt:
		c.mc.errorf("nested fn/agent/tool definitions are not supported")
	default:
		c.mc.errorf("internal: compiler has no case for statement %T", stmt)
	}
}

func (c *funcCompiler) compileLetStmt(s *parser.LetStmt) {
	reg := c.compileExpr(s.Expr)
	if !c.alloc.locked[reg] {
		// The RHS landed in a fresh temporary: bind the name to that
		// register directly instead of copying it into a new one.
		c.alloc.lock(reg)
		c.scope.locals[s.Name] = reg
		return
	}
	local := c.defineLocal(s.Name)
	c.emitMoveIfNeeded(local, reg)
}

func (c *funcCompiler) compileAssignStmt(s *parser.AssignStmt) {
	reg := c.compileExpr(s.Value)
	local, ok := c.resolveLocal(s.Name)
	if !ok {
		c.mc.errorf("undefined variable '%s'", s.Name)
		return
	}
	c.emitMoveIfNeeded(local, reg)
}

func (c *funcCompiler) compileFieldAssignStmt(s *parser.FieldAssignStmt) {
	// See compileFieldAccess: the agent-context check happens at
	// MStore's runtime, not here (spec §8 "self.x = 1 at top level
	// ⇒ runtime error 'not in an agent context'").
	valReg := c.compileExpr(s.Value)
	fieldConst := c.mc.builder.AddStrConstant(s.Field)
	c.emit(bytecode.CreateABx(bytecode.OpMStore, uint8(valReg), fieldConst))
	c.alloc.free(valReg)
}

func (c *funcCompiler) compileEmitStmt(s *parser.EmitStmt) {
	reg := c.compileExpr(s.Expr)
	c.emit(bytecode.CreateABC(bytecode.OpEmit, uint8(reg), 0, 0))
	c.alloc.free(reg)
}

func (c *funcCompiler) compileReturnStmt(s *parser.ReturnStmt) {
	if s.Value == nil {
		c.emit(bytecode.CreateABC(bytecode.OpRetNone, 0, 0, 0))
		return
	}
	reg := c.compileExpr(s.Value)
	c.emit(bytecode.CreateABC(bytecode.OpRet, uint8(reg), 0, 0))
	c.alloc.free(reg)
}

func (c *funcCompiler) compileSendStmt(s *parser.SendStmt) {
	targetReg := c.compileExpr(s.Target)
	targetWasLocked := c.alloc.locked[targetReg]
	c.alloc.lock(targetReg)
	msgReg := c.compileExpr(s.Message)
	if !targetWasLocked {
		c.alloc.unlock(targetReg)
	}
	c.emit(bytecode.CreateABC(bytecode.OpSend, uint8(targetReg), uint8(msgReg), 0))
	if !targetWasLocked {
		c.alloc.free(targetReg)
	}
	c.alloc.free(msgReg)
}

// compileIfStmt fuses the condition test and the branch-skip into a
// single conditional jump (OpJmpFalse), one instruction simpler than
// the donor's separate OP_TEST-then-OP_JMP pair.
func (c *funcCompiler) compileIfStmt(s *parser.IfStmt) {
	condReg := c.compileExpr(s.Condition)
	jumpToElse := c.emit(bytecode.CreateAsBx(bytecode.OpJmpFalse, uint8(condReg), 0))
	c.alloc.free(condReg)

	c.pushScope()
	for _, stmt := range s.Then {
		c.compileStmt(stmt)
	}
	c.popScope()

	if len(s.Else) > 0 {
		jumpToEnd := c.emit(bytecode.CreateSBx24(bytecode.OpJmp, 0))
		c.patchJump(jumpToElse)

		c.pushScope()
		for _, stmt := range s.Else {
			c.compileStmt(stmt)
		}
		c.popScope()

		c.patchJmp24(jumpToEnd)
	} else {
		c.patchJump(jumpToElse)
	}
}

func (c *funcCompiler) compileWhileStmt(s *parser.WhileStmt) {
	loopStart := len(c.code)
	condReg := c.compileExpr(s.Condition)
	exitJump := c.emit(bytecode.CreateAsBx(bytecode.OpJmpFalse, uint8(condReg), 0))
	c.alloc.free(condReg)

	c.pushScope()
	for _, stmt := range s.Body {
		c.compileStmt(stmt)
	}
	c.popScope()

	offset := loopStart - len(c.code) - 1
	c.emit(bytecode.CreateSBx24(bytecode.OpJmp, int32(offset)))
	c.patchJump(exitJump)
}

// compileForInStmt lowers `for x in coll { ... }` to an IterInit
// followed by a loop built on the two-word IterNext group: word 0
// carries the register IterNext deposits the next value into and the
// loop-exit offset, word 1 carries the iterator register.
// The exit offset is measured from the instruction *after* the extra
// data word, so the usual jump-offset arithmetic needs a -2 instead
// of -1 adjustment here (spec §4.2).
func (c *funcCompiler) compileForInStmt(s *parser.ForInStmt) {
	collReg := c.compileExpr(s.Collection)
	iterReg := c.alloc.alloc()
	c.alloc.lock(iterReg)
	c.emit(bytecode.CreateABC(bytecode.OpIterInit, uint8(iterReg), uint8(collReg), 0))
	c.alloc.free(collReg)

	c.pushScope()
	varReg := c.defineLocal(s.Variable)

	loopStart := len(c.code)
	iterNextPC := c.emit(bytecode.CreateAsBx(bytecode.OpIterNext, uint8(varReg), 0))
	c.emit(bytecode.ExtraData(uint8(iterReg), 0))

	for _, stmt := range s.Body {
		c.compileStmt(stmt)
	}

	offset := loopStart - len(c.code) - 1
	c.emit(bytecode.CreateSBx24(bytecode.OpJmp, int32(offset)))

	c.patchIterNextExit(iterNextPC)

	c.popScope()
	c.alloc.unlock(iterReg)
	c.alloc.free(iterReg)
}

func (c *funcCompiler) patchIterNextExit(pc int) {
	offset := len(c.code) - pc - 2
	instr := c.code[pc]
	c.code[pc] = bytecode.CreateAsBx(instr.OpCode(), instr.A(), int16(offset))
}
