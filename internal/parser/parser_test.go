package parser

import (
	"testing"

	"agentus/internal/lexer"
)

func parseString(t *testing.T, src string) []Stmt {
	t.Helper()
	scanner := lexer.NewScanner(src, "test.ag")
	tokens, lexErrs := scanner.ScanTokens()
	if len(lexErrs) > 0 {
		t.Fatalf("unexpected lexer errors: %v", lexErrs)
	}
	p := NewParser(tokens, "test.ag")
	stmts, errs := p.Parse()
	if len(errs) > 0 {
		t.Fatalf("unexpected parser errors: %v", errs)
	}
	return stmts
}

func parseStringExpectErr(t *testing.T, src string) []error {
	t.Helper()
	scanner := lexer.NewScanner(src, "test.ag")
	tokens, _ := scanner.ScanTokens()
	p := NewParser(tokens, "test.ag")
	_, errs := p.Parse()
	if len(errs) == 0 {
		t.Fatalf("expected parse errors, got none")
	}
	return errs
}

func TestParseLetAndEmit(t *testing.T) {
	stmts := parseString(t, `let x = 1 + 2
emit x`)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	let, ok := stmts[0].(*LetStmt)
	if !ok {
		t.Fatalf("expected *LetStmt, got %T", stmts[0])
	}
	if let.Name != "x" {
		t.Fatalf("expected name x, got %s", let.Name)
	}
	bin, ok := let.Expr.(*Binary)
	if !ok || bin.Operator != "+" {
		t.Fatalf("expected binary '+', got %#v", let.Expr)
	}
	emit, ok := stmts[1].(*EmitStmt)
	if !ok {
		t.Fatalf("expected *EmitStmt, got %T", stmts[1])
	}
	if v, ok := emit.Expr.(*Variable); !ok || v.Name != "x" {
		t.Fatalf("expected variable x, got %#v", emit.Expr)
	}
}

func TestParseIfElse(t *testing.T) {
	stmts := parseString(t, `if x == 1 {
  emit "one"
} else {
  emit "other"
}`)
	ifs, ok := stmts[0].(*IfStmt)
	if !ok {
		t.Fatalf("expected *IfStmt, got %T", stmts[0])
	}
	if len(ifs.Then) != 1 || len(ifs.Else) != 1 {
		t.Fatalf("expected one statement per branch, got then=%d else=%d", len(ifs.Then), len(ifs.Else))
	}
}

func TestParseWhileAndForIn(t *testing.T) {
	stmts := parseString(t, `while x < 10 {
  x = x + 1
}
for item in items {
  emit item
}`)
	if _, ok := stmts[0].(*WhileStmt); !ok {
		t.Fatalf("expected *WhileStmt, got %T", stmts[0])
	}
	forIn, ok := stmts[1].(*ForInStmt)
	if !ok {
		t.Fatalf("expected *ForInStmt, got %T", stmts[1])
	}
	if forIn.Variable != "item" {
		t.Fatalf("expected loop variable item, got %s", forIn.Variable)
	}
}

func TestParseFnDef(t *testing.T) {
	stmts := parseString(t, `fn add(a, b) {
  return a + b
}`)
	fn, ok := stmts[0].(*FnDefStmt)
	if !ok {
		t.Fatalf("expected *FnDefStmt, got %T", stmts[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("unexpected function shape: %#v", fn)
	}
	ret, ok := fn.Body[0].(*ReturnStmt)
	if !ok || ret.Value == nil {
		t.Fatalf("expected non-bare return, got %#v", fn.Body[0])
	}
}

func TestParseAgentDef(t *testing.T) {
	stmts := parseString(t, `agent Greeter {
  model = "gpt-4"
  system prompt { "You are friendly." }
  memory {
    count: num = 0,
    name: str
  }
  fn greet(name) {
    self.count = self.count + 1
    return exec { "hello " ++ name }
  }
}`)
	agent, ok := stmts[0].(*AgentDefStmt)
	if !ok {
		t.Fatalf("expected *AgentDefStmt, got %T", stmts[0])
	}
	if agent.Model != "gpt-4" || agent.SystemPrompt != "You are friendly." {
		t.Fatalf("unexpected agent header: %#v", agent)
	}
	if len(agent.Memory) != 2 || agent.Memory[0].Name != "count" || agent.Memory[1].Default != nil {
		t.Fatalf("unexpected memory fields: %#v", agent.Memory)
	}
	if len(agent.Methods) != 1 || agent.Methods[0].Name != "greet" {
		t.Fatalf("unexpected methods: %#v", agent.Methods)
	}
	body := agent.Methods[0].Body
	assign, ok := body[0].(*FieldAssignStmt)
	if !ok || assign.Field != "count" {
		t.Fatalf("expected self.count assignment, got %#v", body[0])
	}
	ret, ok := body[1].(*ReturnStmt)
	if !ok {
		t.Fatalf("expected return, got %#v", body[1])
	}
	if _, ok := ret.Value.(*ExecExpr); !ok {
		t.Fatalf("expected exec expression, got %#v", ret.Value)
	}
}

func TestParseToolDef(t *testing.T) {
	stmts := parseString(t, `tool search {
  description { "searches the web" }
  param query: str
  param limit: num = 10
  returns list
}`)
	tool, ok := stmts[0].(*ToolDefStmt)
	if !ok {
		t.Fatalf("expected *ToolDefStmt, got %T", stmts[0])
	}
	if tool.Description != "searches the web" || tool.ReturnType != "list" {
		t.Fatalf("unexpected tool header: %#v", tool)
	}
	if len(tool.Params) != 2 || tool.Params[0].Default != nil || tool.Params[1].Default == nil {
		t.Fatalf("unexpected tool params: %#v", tool.Params)
	}
}

func TestParseSendRecv(t *testing.T) {
	stmts := parseString(t, `send worker, "ping"
let reply = recv worker`)
	send, ok := stmts[0].(*SendStmt)
	if !ok {
		t.Fatalf("expected *SendStmt, got %T", stmts[0])
	}
	if v, ok := send.Target.(*Variable); !ok || v.Name != "worker" {
		t.Fatalf("unexpected send target: %#v", send.Target)
	}
	let, ok := stmts[1].(*LetStmt)
	if !ok {
		t.Fatalf("expected *LetStmt, got %T", stmts[1])
	}
	if _, ok := let.Expr.(*RecvExpr); !ok {
		t.Fatalf("expected recv expression, got %#v", let.Expr)
	}
}

func TestParseCollectionsAndTemplates(t *testing.T) {
	stmts := parseString(t, `let xs = [1, 2, 3]
let m = { a: 1, b: 2 }
let name = "Ada"
let greeting = "hello {name}, you have {xs[0]} items"`)
	let, ok := stmts[0].(*LetStmt)
	if !ok {
		t.Fatalf("expected *LetStmt, got %T", stmts[0])
	}
	list, ok := let.Expr.(*ListLit)
	if !ok || len(list.Elements) != 3 {
		t.Fatalf("expected 3-element list, got %#v", let.Expr)
	}

	mapLet := stmts[1].(*LetStmt)
	m, ok := mapLet.Expr.(*MapLit)
	if !ok || len(m.Keys) != 2 {
		t.Fatalf("expected 2-key map, got %#v", mapLet.Expr)
	}

	tmplLet := stmts[3].(*LetStmt)
	tmpl, ok := tmplLet.Expr.(*TemplateExpr)
	if !ok {
		t.Fatalf("expected *TemplateExpr, got %#v", tmplLet.Expr)
	}
	if len(tmpl.Parts) != 5 {
		t.Fatalf("expected 5 template parts, got %d: %#v", len(tmpl.Parts), tmpl.Parts)
	}
	if _, ok := tmpl.Parts[1].(*Variable); !ok {
		t.Fatalf("expected variable part, got %#v", tmpl.Parts[1])
	}
	if _, ok := tmpl.Parts[3].(*IndexExpr); !ok {
		t.Fatalf("expected index expr part, got %#v", tmpl.Parts[3])
	}
}

func TestParseMethodAndFieldAccess(t *testing.T) {
	stmts := parseString(t, `let result = worker.process(item)
let value = self.total`)
	let := stmts[0].(*LetStmt)
	call, ok := let.Expr.(*MethodCallExpr)
	if !ok || call.Method != "process" {
		t.Fatalf("expected method call, got %#v", let.Expr)
	}

	fieldLet := stmts[1].(*LetStmt)
	access, ok := fieldLet.Expr.(*FieldAccessExpr)
	if !ok || access.Field != "total" {
		t.Fatalf("expected field access, got %#v", fieldLet.Expr)
	}
	if _, ok := access.Object.(*SelfExpr); !ok {
		t.Fatalf("expected self object, got %#v", access.Object)
	}
}

func TestParseErrorOnMissingBrace(t *testing.T) {
	errs := parseStringExpectErr(t, `if x == 1 {
  emit "one"`)
	if len(errs) == 0 {
		t.Fatalf("expected at least one error")
	}
}

func TestParseErrorRecoversAcrossStatements(t *testing.T) {
	scanner := lexer.NewScanner(`let a = )
let b = 2`, "test.ag")
	tokens, _ := scanner.ScanTokens()
	p := NewParser(tokens, "test.ag")
	stmts, errs := p.Parse()
	if len(errs) == 0 {
		t.Fatalf("expected at least one error")
	}
	found := false
	for _, s := range stmts {
		if let, ok := s.(*LetStmt); ok && let.Name == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected parser to recover and still parse 'let b = 2', stmts=%#v", stmts)
	}
}
