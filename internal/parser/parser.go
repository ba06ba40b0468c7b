// internal/parser/parser.go
package parser

import (
	"fmt"
	"strconv"

	agerrors "agentus/internal/errors"
	"agentus/internal/lexer"
)

// precedence maps each binary-operator token to its climbing level,
// lowest first — the same precedence-table-driven climbing parser
// shape the donor uses, retuned for Agentus's operator set (note
// "++" join the additive tier: it is Concat, not arithmetic Add, but
// sits at the same binding strength).
var precedence = map[lexer.TokenType]int{
	lexer.TokenOr:  1,
	lexer.TokenAnd: 2,

	lexer.TokenDoubleEqual: 3,
	lexer.TokenNotEqual:    3,
	lexer.TokenLT:          3,
	lexer.TokenGT:          3,
	lexer.TokenLE:          3,
	lexer.TokenGE:          3,

	lexer.TokenPlus:     4,
	lexer.TokenMinus:    4,
	lexer.TokenPlusPlus: 4,

	lexer.TokenStar:    5,
	lexer.TokenSlash:   5,
	lexer.TokenPercent: 5,
}

// Parser is a recursive-descent, precedence-climbing parser over an
// Agentus token stream, grounded on the donor's Parser (match/check/
// consume/peek cursor idiom, panic-to-recover error reporting).
type Parser struct {
	tokens  []lexer.Token
	current int
	file    string
}

// NewParser creates a parser over tokens, attributing errors to file.
func NewParser(tokens []lexer.Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// Parse consumes the whole token stream into a statement list. Parse
// errors are collected (via panic/recover per statement) rather than
// aborting on the first one, matching spec §7's "Parser errors are
// collected per stage".
func (p *Parser) Parse() ([]Stmt, []error) {
	var stmts []Stmt
	var errs []error
	for !p.isAtEnd() {
		stmt, err := p.parseTopLevel()
		if err != nil {
			errs = append(errs, err)
			p.synchronize()
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts, errs
}

func (p *Parser) parseTopLevel() (stmt Stmt, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = agerrors.Newf(agerrors.Parser, "%v", r)
			}
			stmt = nil
		}
	}()
	return p.statement(), nil
}

func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		switch p.peek().Type {
		case lexer.TokenLet, lexer.TokenEmit, lexer.TokenReturn, lexer.TokenIf,
			lexer.TokenWhile, lexer.TokenFor, lexer.TokenFn, lexer.TokenAgent,
			lexer.TokenTool, lexer.TokenSend:
			return
		}
		p.advance()
	}
}

func (p *Parser) statement() Stmt {
	switch {
	case p.match(lexer.TokenLet):
		name := p.consume(lexer.TokenIdent, "expect variable name").Lexeme
		p.consume(lexer.TokenEqual, "expect '=' after variable name")
		return &LetStmt{Name: name, Expr: p.expression()}

	case p.match(lexer.TokenEmit):
		return &EmitStmt{Expr: p.expression()}

	case p.match(lexer.TokenReturn):
		if p.check(lexer.TokenRBrace) || p.isAtEnd() {
			return &ReturnStmt{}
		}
		return &ReturnStmt{Value: p.expression()}

	case p.match(lexer.TokenIf):
		return p.ifStatement()

	case p.match(lexer.TokenWhile):
		cond := p.expression()
		p.consume(lexer.TokenLBrace, "expect '{' before while body")
		body := p.block()
		return &WhileStmt{Condition: cond, Body: body}

	case p.match(lexer.TokenFor):
		variable := p.consume(lexer.TokenIdent, "expect loop variable").Lexeme
		p.consume(lexer.TokenIn, "expect 'in' in for loop")
		coll := p.expression()
		p.consume(lexer.TokenLBrace, "expect '{' before for body")
		body := p.block()
		return &ForInStmt{Variable: variable, Collection: coll, Body: body}

	case p.match(lexer.TokenFn):
		return p.fnDef()

	case p.match(lexer.TokenAgent):
		return p.agentDef()

	case p.match(lexer.TokenTool):
		return p.toolDef()

	case p.match(lexer.TokenSend):
		target := p.expression()
		p.consume(lexer.TokenComma, "expect ',' after send target")
		msg := p.expression()
		return &SendStmt{Target: target, Message: msg}

	case p.check(lexer.TokenSelf) && p.checkAt(1, lexer.TokenDot):
		p.advance() // self
		p.advance() // .
		field := p.consume(lexer.TokenIdent, "expect field name after 'self.'").Lexeme
		p.consume(lexer.TokenEqual, "expect '=' in field assignment")
		return &FieldAssignStmt{Field: field, Value: p.expression()}

	case p.check(lexer.TokenIdent) && p.checkAt(1, lexer.TokenEqual):
		name := p.advance().Lexeme
		p.advance() // =
		return &AssignStmt{Name: name, Value: p.expression()}

	case p.check(lexer.TokenIdent) && (p.peek().Lexeme == "try" || p.peek().Lexeme == "catch" ||
		p.peek().Lexeme == "assert" || p.peek().Lexeme == "retry"):
		tok := p.peek()
		panic(agerrors.At(agerrors.Parser, p.file, tok.Line, tok.Column, fmt.Sprintf("'%s' statements are not supported", tok.Lexeme)))

	default:
		return &ExprStmt{Expr: p.expression()}
	}
}

func (p *Parser) block() []Stmt {
	var stmts []Stmt
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		stmts = append(stmts, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expect '}' to close block")
	return stmts
}

func (p *Parser) ifStatement() Stmt {
	cond := p.expression()
	p.consume(lexer.TokenLBrace, "expect '{' before if body")
	then := p.block()
	var els []Stmt
	if p.match(lexer.TokenElse) {
		if p.match(lexer.TokenIf) {
			els = []Stmt{p.ifStatement()}
		} else {
			p.consume(lexer.TokenLBrace, "expect '{' before else body")
			els = p.block()
		}
	}
	return &IfStmt{Condition: cond, Then: then, Else: els}
}

func (p *Parser) paramList() []Param {
	p.consume(lexer.TokenLParen, "expect '(' before parameters")
	var params []Param
	if !p.check(lexer.TokenRParen) {
		for {
			name := p.consume(lexer.TokenIdent, "expect parameter name").Lexeme
			typ := ""
			if p.match(lexer.TokenColon) {
				typ = p.consume(lexer.TokenIdent, "expect parameter type").Lexeme
			}
			params = append(params, Param{Name: name, Type: typ})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after parameters")
	return params
}

func (p *Parser) fnDef() Stmt {
	name := p.consume(lexer.TokenIdent, "expect function name").Lexeme
	params := p.paramList()
	returnType := ""
	if p.match(lexer.TokenMinus) {
		p.consume(lexer.TokenGT, "expect '->' before return type")
		returnType = p.consume(lexer.TokenIdent, "expect return type").Lexeme
	}
	p.consume(lexer.TokenLBrace, "expect '{' before function body")
	body := p.block()
	return &FnDefStmt{Name: name, Params: params, ReturnType: returnType, Body: body}
}

func (p *Parser) agentDef() Stmt {
	name := p.consume(lexer.TokenIdent, "expect agent name").Lexeme
	p.consume(lexer.TokenLBrace, "expect '{' before agent body")

	agentStmt := &AgentDefStmt{Name: name}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		switch {
		case p.match(lexer.TokenModel):
			p.consume(lexer.TokenEqual, "expect '=' after 'model'")
			agentStmt.Model = p.consume(lexer.TokenString, "expect string model name").Lexeme
		case p.match(lexer.TokenSystem):
			p.consume(lexer.TokenPrompt, "expect 'prompt' after 'system'")
			p.consume(lexer.TokenLBrace, "expect '{' before system prompt")
			agentStmt.SystemPrompt = p.consume(lexer.TokenString, "expect prompt string").Lexeme
			p.consume(lexer.TokenRBrace, "expect '}' after system prompt")
		case p.match(lexer.TokenMemory):
			p.consume(lexer.TokenLBrace, "expect '{' before memory block")
			for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
				fieldName := p.consume(lexer.TokenIdent, "expect memory field name").Lexeme
				p.consume(lexer.TokenColon, "expect ':' after memory field name")
				fieldType := p.consume(lexer.TokenIdent, "expect memory field type").Lexeme
				var def Expr
				if p.match(lexer.TokenEqual) {
					def = p.expression()
				}
				agentStmt.Memory = append(agentStmt.Memory, MemoryFieldDecl{Name: fieldName, Type: fieldType, Default: def})
				if !p.match(lexer.TokenComma) {
					break
				}
			}
			p.consume(lexer.TokenRBrace, "expect '}' after memory block")
		case p.match(lexer.TokenFn):
			agentStmt.Methods = append(agentStmt.Methods, p.fnDef().(*FnDefStmt))
		default:
			panic(agerrors.At(agerrors.Parser, p.file, p.peek().Line, p.peek().Column, "unexpected token in agent body: '"+string(p.peek().Type)+"'"))
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after agent body")
	return agentStmt
}

func (p *Parser) toolDef() Stmt {
	name := p.consume(lexer.TokenIdent, "expect tool name").Lexeme
	p.consume(lexer.TokenLBrace, "expect '{' before tool body")

	tool := &ToolDefStmt{Name: name}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		switch {
		case p.match(lexer.TokenDescription):
			p.consume(lexer.TokenLBrace, "expect '{' before description")
			tool.Description = p.consume(lexer.TokenString, "expect description string").Lexeme
			p.consume(lexer.TokenRBrace, "expect '}' after description")
		case p.match(lexer.TokenParam):
			pname := p.consume(lexer.TokenIdent, "expect param name").Lexeme
			p.consume(lexer.TokenColon, "expect ':' after param name")
			ptype := p.consume(lexer.TokenIdent, "expect param type").Lexeme
			var def Expr
			if p.match(lexer.TokenEqual) {
				def = p.expression()
				if _, ok := def.(*Literal); !ok {
					panic(agerrors.At(agerrors.Parser, p.file, p.peek().Line, p.peek().Column, "tool parameter defaults must be literal constants"))
				}
			}
			tool.Params = append(tool.Params, ToolParamDecl{Name: pname, Type: ptype, Default: def})
		case p.match(lexer.TokenReturns):
			tool.ReturnType = p.consume(lexer.TokenIdent, "expect return type").Lexeme
		default:
			panic(agerrors.At(agerrors.Parser, p.file, p.peek().Line, p.peek().Column, "unexpected token in tool body: '"+string(p.peek().Type)+"'"))
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after tool body")
	return tool
}

// --- expressions ---

func (p *Parser) expression() Expr { return p.parseBinary(0) }

func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for {
		tok := p.peek()
		prec, ok := precedence[tok.Type]
		if !ok || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		left = &Binary{Left: left, Operator: tok.Lexeme, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.match(lexer.TokenMinus) {
		return &Unary{Operator: "-", Operand: p.parseUnary()}
	}
	if p.match(lexer.TokenNot) {
		return &Unary{Operator: "not", Operand: p.parseUnary()}
	}
	return p.parseCallOrIndex()
}

func (p *Parser) parseCallOrIndex() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenDot):
			name := p.consume(lexer.TokenIdent, "expect name after '.'").Lexeme
			if p.match(lexer.TokenLParen) {
				args := p.argList()
				expr = &MethodCallExpr{Object: expr, Method: name, Args: args}
			} else {
				expr = &FieldAccessExpr{Object: expr, Field: name}
			}
		case p.match(lexer.TokenLBracket):
			idx := p.expression()
			p.consume(lexer.TokenRBracket, "expect ']' after index")
			expr = &IndexExpr{Object: expr, Index: idx}
		case p.match(lexer.TokenLParen):
			if v, ok := expr.(*Variable); ok {
				args := p.argList()
				expr = &CallExpr{Name: v.Name, Args: args}
			} else {
				panic(agerrors.At(agerrors.Parser, p.file, p.peek().Line, p.peek().Column, "call target must be a bare name"))
			}
		default:
			return expr
		}
	}
}

func (p *Parser) argList() []Expr {
	var args []Expr
	if !p.check(lexer.TokenRParen) {
		for {
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after arguments")
	return args
}

func (p *Parser) primary() Expr {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenString:
		return parseStringLiteral(tok.Lexeme)
	case lexer.TokenNumber:
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			panic(agerrors.At(agerrors.Parser, p.file, tok.Line, tok.Column, "invalid number literal '"+tok.Lexeme+"'"))
		}
		return &Literal{Value: n}
	case lexer.TokenTrue:
		return &Literal{Value: true}
	case lexer.TokenFalse:
		return &Literal{Value: false}
	case lexer.TokenNone:
		return &Literal{Value: nil}
	case lexer.TokenSelf:
		return &SelfExpr{}
	case lexer.TokenIdent:
		return &Variable{Name: tok.Lexeme}
	case lexer.TokenLParen:
		expr := p.expression()
		p.consume(lexer.TokenRParen, "expect ')' after expression")
		return expr
	case lexer.TokenLBracket:
		var elems []Expr
		if !p.check(lexer.TokenRBracket) {
			for {
				elems = append(elems, p.expression())
				if !p.match(lexer.TokenComma) {
					break
				}
			}
		}
		p.consume(lexer.TokenRBracket, "expect ']' after list elements")
		return &ListLit{Elements: elems}
	case lexer.TokenLBrace:
		return p.mapLit()
	case lexer.TokenExec:
		p.consume(lexer.TokenLBrace, "expect '{' after 'exec'")
		prompt := p.expression()
		p.consume(lexer.TokenRBrace, "expect '}' to close exec block")
		return &ExecExpr{Prompt: prompt}
	case lexer.TokenRecv:
		return &RecvExpr{Target: p.parseUnary()}
	default:
		panic(agerrors.At(agerrors.Parser, p.file, tok.Line, tok.Column, fmt.Sprintf("unexpected token in expression: '%s'", tok.Lexeme)))
	}
}

// mapLit parses `{k1: v1, k2: v2, ...}`. A key is either a bare
// identifier or a quoted string (`{name: 1}` and `{"name": 1}` are
// equivalent); map keys are always strings at the value level (spec
// §3: Map is "keyed by string"), so an identifier key is just sugar
// for its own name as a string.
func (p *Parser) mapLit() Expr {
	m := &MapLit{}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		var key string
		switch {
		case p.check(lexer.TokenString):
			key = unescape(p.advance().Lexeme)
		case p.check(lexer.TokenIdent):
			key = p.advance().Lexeme
		default:
			panic(agerrors.At(agerrors.Parser, p.file, p.peek().Line, p.peek().Column, "expect map key (got '"+p.peek().Lexeme+"')"))
		}
		p.consume(lexer.TokenColon, "expect ':' after map key")
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after map literal")
	return m
}

// parseStringLiteral splits a raw string body into a plain Literal if
// it contains no `{...}` interpolation, or a TemplateExpr of
// alternating literal and embedded-expression parts otherwise — the
// split happens here, by recursively re-scanning/re-parsing each
// `{...}` segment, rather than in the lexer (spec §4.3: "Template
// literals → left-to-right Concat of each literal-or-expression
// segment").
func parseStringLiteral(raw string) Expr {
	parts := splitTemplate(raw)
	if len(parts) == 1 {
		if lit, ok := parts[0].(*Literal); ok {
			return lit
		}
	}
	if len(parts) == 0 {
		return &Literal{Value: ""}
	}
	return &TemplateExpr{Parts: parts}
}

func splitTemplate(raw string) []Expr {
	var parts []Expr
	var buf []byte
	flush := func() {
		if len(buf) > 0 {
			parts = append(parts, &Literal{Value: unescape(string(buf))})
			buf = nil
		}
	}
	i := 0
	for i < len(raw) {
		if raw[i] == '{' {
			depth := 1
			j := i + 1
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth == 0 {
					break
				}
				j++
			}
			inner := raw[i+1 : j]
			flush()
			parts = append(parts, parseSubExpr(inner))
			i = j + 1
			continue
		}
		if raw[i] == '\\' && i+1 < len(raw) {
			buf = append(buf, raw[i+1])
			i += 2
			continue
		}
		buf = append(buf, raw[i])
		i++
	}
	flush()
	return parts
}

func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, s[i])
			}
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func parseSubExpr(src string) Expr {
	scanner := lexer.NewScanner(src, "<template>")
	tokens, _ := scanner.ScanTokens()
	sub := NewParser(tokens, "<template>")
	return sub.expression()
}

// --- cursor helpers ---

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	tok := p.peek()
	panic(agerrors.At(agerrors.Parser, p.file, tok.Line, tok.Column, fmt.Sprintf("%s (got '%s')", msg, tok.Lexeme)))
}

func (p *Parser) check(t lexer.TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) checkAt(offset int, t lexer.TokenType) bool {
	idx := p.current + offset
	if idx >= len(p.tokens) {
		return false
	}
	return p.tokens[idx].Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.tokens[p.current-1]
}

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) isAtEnd() bool { return p.peek().Type == lexer.TokenEOF }
