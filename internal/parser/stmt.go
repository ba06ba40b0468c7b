// internal/parser/stmt.go
package parser

// Stmt is any Agentus statement node.
type Stmt interface {
	stmtNode()
}

// LetStmt is `let name = expr`.
type LetStmt struct {
	Name string
	Expr Expr
}

func (*LetStmt) stmtNode() {}

// AssignStmt is `name = expr` for an already-declared local.
type AssignStmt struct {
	Name  string
	Value Expr
}

func (*AssignStmt) stmtNode() {}

// FieldAssignStmt is `self.field = expr`.
type FieldAssignStmt struct {
	Field string
	Value Expr
}

func (*FieldAssignStmt) stmtNode() {}

// EmitStmt is `emit expr`.
type EmitStmt struct {
	Expr Expr
}

func (*EmitStmt) stmtNode() {}

// ReturnStmt is `return [expr]`.
type ReturnStmt struct {
	Value Expr // nil means bare `return`
}

func (*ReturnStmt) stmtNode() {}

// ExprStmt wraps a call expression used for its side effect.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}

// IfStmt is `if cond { ... } [else { ... }]`.
type IfStmt struct {
	Condition Expr
	Then      []Stmt
	Else      []Stmt
}

func (*IfStmt) stmtNode() {}

// WhileStmt is `while cond { ... }`.
type WhileStmt struct {
	Condition Expr
	Body      []Stmt
}

func (*WhileStmt) stmtNode() {}

// ForInStmt is `for x in iterable { ... }`.
type ForInStmt struct {
	Variable   string
	Collection Expr
	Body       []Stmt
}

func (*ForInStmt) stmtNode() {}

// Param is one function/method parameter (type is carried for
// documentation; the core has no static type checking beyond name
// resolution, spec §1 Non-goals).
type Param struct {
	Name string
	Type string
}

// FnDefStmt is a top-level or agent-method function declaration.
type FnDefStmt struct {
	Name       string
	Params     []Param
	ReturnType string
	Body       []Stmt
}

func (*FnDefStmt) stmtNode() {}

// MemoryFieldDecl is one `memory { field: type = default }` entry.
type MemoryFieldDecl struct {
	Name    string
	Type    string
	Default Expr // nil if no default
}

// AgentDefStmt is an `agent Name { ... }` declaration.
type AgentDefStmt struct {
	Name         string
	Model        string // "" if absent
	SystemPrompt string // "" if absent
	Memory       []MemoryFieldDecl
	Methods      []*FnDefStmt
}

func (*AgentDefStmt) stmtNode() {}

// ToolParamDecl is one `param name: type [= default]` entry.
type ToolParamDecl struct {
	Name    string
	Type    string
	Default Expr // nil if no default
}

// ToolDefStmt is a `tool Name { ... }` declaration.
type ToolDefStmt struct {
	Name        string
	Description string // "" if absent
	Params      []ToolParamDecl
	ReturnType  string
}

func (*ToolDefStmt) stmtNode() {}

// SendStmt is `send target, message`.
type SendStmt struct {
	Target  Expr
	Message Expr
}

func (*SendStmt) stmtNode() {}
