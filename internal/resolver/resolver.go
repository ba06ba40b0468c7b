// Package resolver performs the semantic stage between parsing and
// codegen: it walks the AST tracking declared locals per scope, and
// rejects references to undeclared names before the compiler ever
// has to deal with them (spec §6, negative scenario "undefined
// variable 'x'"). It also collects top-level function/agent/tool
// names so forward references (calling a function defined later in
// the file) resolve correctly, mirroring how the donor's compiler
// pre-scans top-level defs before compiling bodies.
package resolver

import (
	agerrors "agentus/internal/errors"
	"agentus/internal/parser"
)

// scope is one lexical block's set of declared local names.
type scope map[string]bool

// Resolver walks a parsed program checking name references.
type Resolver struct {
	scopes    []scope
	functions map[string]bool
	agents    map[string]bool
	tools     map[string]bool
	inAgent   bool
	errs      []error
}

// New creates a resolver.
func New() *Resolver {
	return &Resolver{
		functions: make(map[string]bool),
		agents:    make(map[string]bool),
		tools:     make(map[string]bool),
	}
}

// Resolve checks a whole program and returns any semantic errors
// collected (spec §7: Semantic errors are collected per stage, like
// Lexer/Parser).
func (r *Resolver) Resolve(program []parser.Stmt) []error {
	r.collectTopLevel(program)
	r.pushScope()
	for _, stmt := range program {
		r.resolveStmt(stmt)
	}
	r.popScope()
	return r.errs
}

func (r *Resolver) collectTopLevel(program []parser.Stmt) {
	for _, stmt := range program {
		switch s := stmt.(type) {
		case *parser.FnDefStmt:
			r.functions[s.Name] = true
		case *parser.AgentDefStmt:
			r.agents[s.Name] = true
		case *parser.ToolDefStmt:
			r.tools[s.Name] = true
		}
	}
}

func (r *Resolver) pushScope() { r.scopes = append(r.scopes, scope{}) }
func (r *Resolver) popScope()  { r.scopes = r.scopes[:len(r.scopes)-1] }

func (r *Resolver) declare(name string) {
	r.scopes[len(r.scopes)-1][name] = true
}

func (r *Resolver) isDeclared(name string) bool {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if r.scopes[i][name] {
			return true
		}
	}
	return false
}

func (r *Resolver) callableExists(name string) bool {
	return r.functions[name] || r.agents[name] || r.tools[name]
}

func (r *Resolver) errorf(format string, args ...interface{}) {
	r.errs = append(r.errs, agerrors.Newf(agerrors.Semantic, format, args...))
}

func (r *Resolver) resolveStmt(stmt parser.Stmt) {
	switch s := stmt.(type) {
	case *parser.LetStmt:
		r.resolveExpr(s.Expr)
		r.declare(s.Name)
	case *parser.AssignStmt:
		r.resolveExpr(s.Value)
		if !r.isDeclared(s.Name) {
			r.errorf("undefined variable '%s'", s.Name)
		}
	case *parser.FieldAssignStmt:
		// Whether this is inside an agent method is a runtime-frame
		// property, not a lexical one: spec §8 requires "self.x = 1"
		// at top level to surface as a Runtime error ("not in an
		// agent context"), not a Semantic one. MStore enforces it.
		r.resolveExpr(s.Value)
	case *parser.EmitStmt:
		r.resolveExpr(s.Expr)
	case *parser.ReturnStmt:
		if s.Value != nil {
			r.resolveExpr(s.Value)
		}
	case *parser.ExprStmt:
		r.resolveExpr(s.Expr)
	case *parser.IfStmt:
		r.resolveExpr(s.Condition)
		r.resolveBlock(s.Then)
		if s.Else != nil {
			r.resolveBlock(s.Else)
		}
	case *parser.WhileStmt:
		r.resolveExpr(s.Condition)
		r.resolveBlock(s.Body)
	case *parser.ForInStmt:
		r.resolveExpr(s.Collection)
		r.pushScope()
		r.declare(s.Variable)
		for _, st := range s.Body {
			r.resolveStmt(st)
		}
		r.popScope()
	case *parser.FnDefStmt:
		r.resolveFn(s, false)
	case *parser.AgentDefStmt:
		r.resolveAgent(s)
	case *parser.ToolDefStmt:
		// Tool bodies are declarative (params/description/returns);
		// default-value expressions must already be literals (the
		// parser enforces that), nothing more to resolve.
	case *parser.SendStmt:
		r.resolveExpr(s.Target)
		r.resolveExpr(s.Message)
	default:
		r.errorf("internal: resolver has no case for statement %T", stmt)
	}
}

func (r *Resolver) resolveBlock(stmts []parser.Stmt) {
	r.pushScope()
	for _, s := range stmts {
		r.resolveStmt(s)
	}
	r.popScope()
}

func (r *Resolver) resolveFn(fn *parser.FnDefStmt, isMethod bool) {
	r.pushScope()
	for _, p := range fn.Params {
		r.declare(p.Name)
	}
	wasInAgent := r.inAgent
	r.inAgent = isMethod
	for _, s := range fn.Body {
		r.resolveStmt(s)
	}
	r.inAgent = wasInAgent
	r.popScope()
}

func (r *Resolver) resolveAgent(agent *parser.AgentDefStmt) {
	r.pushScope()
	for _, m := range agent.Memory {
		r.declare(m.Name)
		if m.Default != nil {
			r.resolveExpr(m.Default)
		}
	}
	for _, m := range agent.Methods {
		r.resolveFn(m, true)
	}
	r.popScope()
}

func (r *Resolver) resolveExpr(expr parser.Expr) {
	switch e := expr.(type) {
	case *parser.Literal:
		// nothing to check
	case *parser.TemplateExpr:
		for _, p := range e.Parts {
			r.resolveExpr(p)
		}
	case *parser.Variable:
		if !r.isDeclared(e.Name) && !r.callableExists(e.Name) {
			r.errorf("undefined variable '%s'", e.Name)
		}
	case *parser.Binary:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)
	case *parser.Unary:
		r.resolveExpr(e.Operand)
	case *parser.CallExpr:
		// Unlike a bare variable reference, an unresolved call target
		// is not flagged here: spec §8 classifies "emit foo()" with no
		// such function/tool/agent as a *compile* (codegen) error, not
		// a semantic one, so resolution is left to the compiler's name
		// tables (internal/compiler.compileCall).
		for _, a := range e.Args {
			r.resolveExpr(a)
		}
	case *parser.MethodCallExpr:
		r.resolveExpr(e.Object)
		for _, a := range e.Args {
			r.resolveExpr(a)
		}
	case *parser.FieldAccessExpr:
		// As with FieldAssignStmt, whether 'self' resolves to a live
		// agent frame is checked by MLoad at runtime, not here.
		r.resolveExpr(e.Object)
	case *parser.IndexExpr:
		r.resolveExpr(e.Object)
		r.resolveExpr(e.Index)
	case *parser.ListLit:
		for _, el := range e.Elements {
			r.resolveExpr(el)
		}
	case *parser.MapLit:
		for _, v := range e.Values {
			r.resolveExpr(v)
		}
	case *parser.ExecExpr:
		r.resolveExpr(e.Prompt)
	case *parser.RecvExpr:
		r.resolveExpr(e.Target)
	case *parser.SelfExpr:
		// Nothing to check lexically; a bare 'self' used as a value
		// (rather than as a FieldAccessExpr/FieldAssignStmt receiver)
		// is rejected by the compiler instead (compileExpr's SelfExpr
		// case: "'self' cannot be used as a value").
	default:
		r.errorf("internal: resolver has no case for expression %T", expr)
	}
}
