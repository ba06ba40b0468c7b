// Package compiler lowers a resolved Agentus AST into a module.Module
// of register-based bytecode functions.
//
// The register-allocation idiom (a free-list allocator with Lock/
// Unlock to pin a register across a sub-expression, findConsecutive
// for multi-slot literals) and the emit/addConstant/patchJump shape
// are carried over from the donor's internal/compregister/compiler.go
// almost unchanged — that part of the donor's design is generic to any
// register VM and needed no rework. What changed is everything the
// allocator is pointed at: statement and expression kinds, the
// instruction groups for Call/method-Call/tool-Call/IterNext, and the
// agent/tool/memory-aware name resolution order from spec §4.3.
package compiler

import (
	"agentus/internal/bytecode"
	agerrors "agentus/internal/errors"
	"agentus/internal/module"
	"agentus/internal/parser"
)

// registerAllocator manages register allocation within one function
// being compiled (grounded on the donor's RegisterAllocator).
type registerAllocator struct {
	nextReg  int
	maxReg   int
	freeRegs []int
	locked   map[int]bool
}

func newRegisterAllocator() *registerAllocator {
	return &registerAllocator{locked: make(map[int]bool)}
}

func (ra *registerAllocator) alloc() int {
	if n := len(ra.freeRegs); n > 0 {
		reg := ra.freeRegs[n-1]
		ra.freeRegs = ra.freeRegs[:n-1]
		return reg
	}
	reg := ra.nextReg
	ra.nextReg++
	if ra.nextReg > ra.maxReg {
		ra.maxReg = ra.nextReg
	}
	return reg
}

func (ra *registerAllocator) free(reg int) {
	if !ra.locked[reg] {
		ra.freeRegs = append(ra.freeRegs, reg)
	}
}

func (ra *registerAllocator) lock(reg int)   { ra.locked[reg] = true }
func (ra *registerAllocator) unlock(reg int) { delete(ra.locked, reg) }

// findConsecutive finds (and reserves) n consecutive unlocked
// registers, used for list/map literal element and Call argument
// runs, which the VM addresses as a base register plus count.
func (c *funcCompiler) findConsecutive(n int) int {
	start := c.alloc.nextReg
	for {
		ok := true
		for i := 0; i < n; i++ {
			if c.alloc.locked[start+i] {
				ok = false
				start = start + i + 1
				break
			}
		}
		if ok {
			if start+n > c.alloc.nextReg {
				c.alloc.nextReg = start + n
				if c.alloc.nextReg > c.alloc.maxReg {
					c.alloc.maxReg = c.alloc.nextReg
				}
			}
			return start
		}
	}
}

// funcScope tracks local-variable-to-register bindings for one block.
type funcScope struct {
	parent *funcScope
	locals map[string]int
}

// funcCompiler compiles the body of a single Agentus function
// (top-level `fn`, an agent method, or the implicit program entry
// function) into one module.Function.
type funcCompiler struct {
	mc    *ModuleCompiler
	code  []bytecode.Instruction
	alloc *registerAllocator
	scope *funcScope
}

func newFuncCompiler(mc *ModuleCompiler) *funcCompiler {
	return &funcCompiler{
		mc:    mc,
		alloc: newRegisterAllocator(),
		scope: &funcScope{locals: make(map[string]int)},
	}
}

func (c *funcCompiler) emit(i bytecode.Instruction) int {
	pos := len(c.code)
	c.code = append(c.code, i)
	return pos
}

// patchJump rewrites the AsBx offset of the jump instruction at pc so
// it lands at the current end of the code stream (offset computed
// relative to the word after pc, matching the VM's fetch-then-advance
// loop: spec's "sign-extended on decode" jump arithmetic).
func (c *funcCompiler) patchJump(pc int) {
	offset := len(c.code) - pc - 1
	instr := c.code[pc]
	c.code[pc] = bytecode.CreateAsBx(instr.OpCode(), instr.A(), int16(offset))
}

func (c *funcCompiler) patchJmp24(pc int) {
	offset := len(c.code) - pc - 1
	instr := c.code[pc]
	c.code[pc] = bytecode.CreateSBx24(instr.OpCode(), int32(offset))
}

func (c *funcCompiler) pushScope() {
	c.scope = &funcScope{parent: c.scope, locals: make(map[string]int)}
}

func (c *funcCompiler) popScope() {
	for _, reg := range c.scope.locals {
		c.alloc.unlock(reg)
		c.alloc.free(reg)
	}
	c.scope = c.scope.parent
}

func (c *funcCompiler) defineLocal(name string) int {
	reg := c.alloc.alloc()
	c.alloc.lock(reg)
	c.scope.locals[name] = reg
	return reg
}

func (c *funcCompiler) resolveLocal(name string) (int, bool) {
	for s := c.scope; s != nil; s = s.parent {
		if reg, ok := s.locals[name]; ok {
			return reg, true
		}
	}
	return 0, false
}

// ModuleCompiler drives compilation of an entire program into a
// module.Module: it pre-scans top-level fn/agent/tool declarations so
// calls can reference names defined later in the file (forward
// references), then compiles each in turn.
type ModuleCompiler struct {
	builder *module.Builder

	functionIndex map[string]uint32
	agentIndex    map[string]uint32
	toolIndex     map[string]uint32

	errs []error
}

// NewModuleCompiler creates an empty module compiler.
func NewModuleCompiler() *ModuleCompiler {
	return &ModuleCompiler{
		builder:       module.NewBuilder(),
		functionIndex: make(map[string]uint32),
		agentIndex:    make(map[string]uint32),
		toolIndex:     make(map[string]uint32),
	}
}

// Compile lowers a resolved program into a complete module.Module. The
// caller is expected to have already run the resolver; this stage
// only reports codegen-local errors (e.g. malformed literals).
//
// Compilation runs in two passes so a call may reference a fn/agent/
// tool defined later in the same file: pass one reserves a slot (and,
// for tools, fully compiles the descriptor, which has no body to
// forward-reference anything) for every top-level name; pass two
// compiles each function/agent body and overwrites its slot in place.
func Compile(program []parser.Stmt) (*module.Module, []error) {
	mc := NewModuleCompiler()

	var fnDefs []*parser.FnDefStmt
	var agentDefs []*parser.AgentDefStmt
	var topLevel []parser.Stmt

	for _, stmt := range program {
		switch s := stmt.(type) {
		case *parser.FnDefStmt:
			mc.functionIndex[s.Name] = mc.builder.AddFunction(module.Function{NameConst: mc.builder.AddStrConstant(s.Name)})
			fnDefs = append(fnDefs, s)
		case *parser.AgentDefStmt:
			mc.agentIndex[s.Name] = mc.builder.AddAgentDescriptor(module.AgentDescriptor{
				NameConst: mc.builder.AddStrConstant(s.Name),
				Methods:   make(map[uint16]uint32),
			})
			agentDefs = append(agentDefs, s)
		case *parser.ToolDefStmt:
			mc.compileTool(s)
		default:
			topLevel = append(topLevel, stmt)
		}
	}

	for _, fn := range fnDefs {
		mc.compileFunction(fn, mc.functionIndex[fn.Name])
	}
	for _, agent := range agentDefs {
		mc.compileAgent(agent)
	}

	entry := mc.compileEntry(topLevel)
	mc.builder.SetEntryFunction(entry)

	if len(mc.errs) > 0 {
		return nil, mc.errs
	}
	return mc.builder.Module(), nil
}

func (mc *ModuleCompiler) errorf(format string, args ...interface{}) {
	mc.errs = append(mc.errs, agerrors.Newf(agerrors.Codegen, format, args...))
}

// compileEntry compiles the program's top-level statements (anything
// outside a fn/agent/tool block) as the module's entry function.
func (mc *ModuleCompiler) compileEntry(stmts []parser.Stmt) uint32 {
	fc := newFuncCompiler(mc)
	for _, stmt := range stmts {
		fc.compileStmt(stmt)
	}
	fc.emit(bytecode.CreateABC(bytecode.OpRetNone, 0, 0, 0))
	nameConst := mc.builder.AddStrConstant("<entry>")
	return mc.builder.AddFunction(module.Function{
		NameConst:    nameConst,
		NumParams:    0,
		NumRegisters: uint16(fc.alloc.maxReg),
		Code:         instructionsToWords(fc.code),
	})
}

func (mc *ModuleCompiler) compileFunction(fn *parser.FnDefStmt, idx uint32) {
	fc := newFuncCompiler(mc)
	for _, p := range fn.Params {
		fc.defineLocal(p.Name)
	}
	for _, stmt := range fn.Body {
		fc.compileStmt(stmt)
	}
	fc.emit(bytecode.CreateABC(bytecode.OpRetNone, 0, 0, 0))
	nameConst := mc.builder.Module().Functions[idx].NameConst
	mc.builder.Module().Functions[idx] = module.Function{
		NameConst:    nameConst,
		NumParams:    uint8(len(fn.Params)),
		NumRegisters: uint16(fc.alloc.maxReg),
		Code:         instructionsToWords(fc.code),
	}
}

func (mc *ModuleCompiler) compileAgent(agent *parser.AgentDefStmt) {
	agentIdx := mc.agentIndex[agent.Name]
	desc := module.AgentDescriptor{
		NameConst: mc.builder.Module().AgentDescriptors[agentIdx].NameConst,
		Methods:   make(map[uint16]uint32),
	}
	if agent.Model != "" {
		desc.HasModel = true
		desc.ModelConst = mc.builder.AddStrConstant(agent.Model)
	}
	if agent.SystemPrompt != "" {
		desc.HasSystemPrompt = true
		desc.SystemPromptConst = mc.builder.AddStrConstant(agent.SystemPrompt)
	}
	for _, f := range agent.Memory {
		fd := module.MemoryFieldDescriptor{NameConst: mc.builder.AddStrConstant(f.Name)}
		if f.Default != nil {
			lit, ok := f.Default.(*parser.Literal)
			if !ok {
				mc.errorf("memory field '%s' default must be a literal", f.Name)
			} else {
				fd.HasDefault = true
				fd.DefaultConst = mc.literalConstant(lit)
			}
		}
		desc.Fields = append(desc.Fields, fd)
	}

	// Reserve a function slot per method and fill the descriptor's
	// method table before compiling any body. Method names are not added
	// to the module's function table, so a method body cannot call a
	// sibling method (or itself) by bare name.
	methodFnIdx := make(map[string]uint32, len(agent.Methods))
	for _, m := range agent.Methods {
		methodFnIdx[m.Name] = mc.builder.AddFunction(module.Function{NameConst: mc.builder.AddStrConstant(m.Name)})
	}
	for name, fnIdx := range methodFnIdx {
		desc.Methods[mc.builder.AddStrConstant(name)] = fnIdx
	}
	mc.builder.Module().AgentDescriptors[agentIdx] = desc

	for _, m := range agent.Methods {
		mc.compileFunction(m, methodFnIdx[m.Name])
	}
}

func (mc *ModuleCompiler) compileTool(tool *parser.ToolDefStmt) {
	desc := module.ToolDescriptor{NameConst: mc.builder.AddStrConstant(tool.Name)}
	if tool.Description != "" {
		desc.HasDescription = true
		desc.DescriptionConst = mc.builder.AddStrConstant(tool.Description)
	}
	for _, p := range tool.Params {
		pd := module.ToolParamDescriptor{NameConst: mc.builder.AddStrConstant(p.Name)}
		if p.Default != nil {
			lit, ok := p.Default.(*parser.Literal)
			if !ok {
				mc.errorf("tool parameter '%s' default must be a literal", p.Name)
			} else {
				pd.HasDefault = true
				pd.DefaultConst = mc.literalConstant(lit)
			}
		}
		desc.Params = append(desc.Params, pd)
	}
	idx := mc.builder.AddToolDescriptor(desc)
	mc.toolIndex[tool.Name] = idx
}

func (mc *ModuleCompiler) literalConstant(lit *parser.Literal) uint16 {
	switch v := lit.Value.(type) {
	case nil:
		return mc.builder.AddNoneConstant()
	case bool:
		return mc.builder.AddBoolConstant(v)
	case float64:
		return mc.builder.AddNumConstant(v)
	case string:
		return mc.builder.AddStrConstant(v)
	default:
		mc.errorf("unsupported literal constant type %T", v)
		return mc.builder.AddNoneConstant()
	}
}

// instructionsToWords flattens bytecode.Instruction values into the
// untyped uint32 slice module.Function.Code stores (module must not
// import bytecode, to avoid an import cycle with the VM consuming
// both).
func instructionsToWords(code []bytecode.Instruction) []uint32 {
	words := make([]uint32, len(code))
	for i, instr := range code {
		words[i] = uint32(instr)
	}
	return words
}
