package compiler_test

import (
	"testing"

	"github.com/kr/pretty"

	"agentus/internal/bytecode"
	"agentus/internal/compiler"
	"agentus/internal/lexer"
	"agentus/internal/parser"
	"agentus/internal/resolver"
)

// opNamesOf decodes a word slice into opcode mnemonics for assertions
// that only care about instruction shape, not register numbers —
// kr/pretty renders the full decoded instruction on mismatch so a
// failing assertion shows more than a bare opcode name.
func opNamesOf(t *testing.T, words []uint32) []string {
	t.Helper()
	names := make([]string, len(words))
	for i, w := range words {
		names[i] = bytecode.Instruction(w).OpCode().String()
	}
	return names
}

func assertOps(t *testing.T, words []uint32, want ...string) {
	t.Helper()
	got := opNamesOf(t, words)
	if len(got) != len(want) {
		t.Fatalf("instruction count mismatch:\n%# v", pretty.Formatter(decodeAll(words)))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instruction %d: expected %s, got %s\n%# v", i, want[i], got[i], pretty.Formatter(decodeAll(words)))
		}
	}
}

func decodeAll(words []uint32) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = bytecode.Instruction(w).String()
	}
	return out
}

func TestCompileLetAndEmitEmitsLoadConstThenEmit(t *testing.T) {
	src := `let greeting = "hi"
emit greeting`
	tokens, errs := lexer.NewScanner(src, "test.ags").ScanTokens()
	if len(errs) > 0 {
		t.Fatalf("lexer errors: %v", errs)
	}
	stmts, errs := parser.NewParser(tokens, "test.ags").Parse()
	if len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	if errs := resolver.New().Resolve(stmts); len(errs) > 0 {
		t.Fatalf("resolver errors: %v", errs)
	}
	mod, errs := compiler.Compile(stmts)
	if len(errs) > 0 {
		t.Fatalf("compiler errors: %v", errs)
	}

	entry := mod.Functions[mod.EntryFunction]
	assertOps(t, entry.Code, "LOADCONST", "EMIT", "RETNONE")
}

func TestCompileFunctionCallUsesABxWordThenExtraData(t *testing.T) {
	src := `fn abs(x: num) -> num {
	if x < 0 {
		return -x
	}
	return x
}
emit abs(5)`
	tokens, errs := lexer.NewScanner(src, "test.ags").ScanTokens()
	if len(errs) > 0 {
		t.Fatalf("lexer errors: %v", errs)
	}
	stmts, errs := parser.NewParser(tokens, "test.ags").Parse()
	if len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	if errs := resolver.New().Resolve(stmts); len(errs) > 0 {
		t.Fatalf("resolver errors: %v", errs)
	}
	mod, errs := compiler.Compile(stmts)
	if len(errs) > 0 {
		t.Fatalf("compiler errors: %v", errs)
	}

	entry := mod.Functions[mod.EntryFunction]
	// LOADCONST 5, MOVE into the argument run, CALL, <extra-data NOP
	// word>, EMIT, RETNONE.
	assertOps(t, entry.Code, "LOADCONST", "MOVE", "CALL", "NOP", "EMIT", "RETNONE")

	callWord := bytecode.Instruction(entry.Code[2])
	if callWord.Bx() == bytecode.MethodCallSentinel {
		t.Fatalf("expected a direct function-index call, got the method-call sentinel\n%# v", pretty.Formatter(callWord))
	}
	extraWord := bytecode.Instruction(entry.Code[3])
	if extraWord.C() != 1 {
		t.Fatalf("expected 1 argument packed in the extra-data word, got %d\n%# v", extraWord.C(), pretty.Formatter(extraWord))
	}
}

func TestCompileMethodCallUsesSentinelAndMethodNameWord(t *testing.T) {
	src := `agent Counter {
	memory {
		count: num = 0
	}
	fn inc() -> num {
		self.count = self.count + 1
		return self.count
	}
}
let a = Counter()
emit a.inc()`
	tokens, errs := lexer.NewScanner(src, "test.ags").ScanTokens()
	if len(errs) > 0 {
		t.Fatalf("lexer errors: %v", errs)
	}
	stmts, errs := parser.NewParser(tokens, "test.ags").Parse()
	if len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	if errs := resolver.New().Resolve(stmts); len(errs) > 0 {
		t.Fatalf("resolver errors: %v", errs)
	}
	mod, errs := compiler.Compile(stmts)
	if len(errs) > 0 {
		t.Fatalf("compiler errors: %v", errs)
	}

	entry := mod.Functions[mod.EntryFunction]
	// SPAWN, MOVE of the receiver into the argument run, CALL,
	// <extra-data>, <method-name word>, EMIT, RETNONE.
	assertOps(t, entry.Code, "SPAWN", "MOVE", "CALL", "NOP", "NOP", "EMIT", "RETNONE")

	callWord := bytecode.Instruction(entry.Code[2])
	if callWord.Bx() != bytecode.MethodCallSentinel {
		t.Fatalf("expected the method-call sentinel, got Bx=%d\n%# v", callWord.Bx(), pretty.Formatter(callWord))
	}
}

func TestCompileMapLiteralUsesTwoRegistersPerPair(t *testing.T) {
	src := `let m = {"a": 1, "b": 2}
emit m.len()`
	tokens, errs := lexer.NewScanner(src, "test.ags").ScanTokens()
	if len(errs) > 0 {
		t.Fatalf("lexer errors: %v", errs)
	}
	stmts, errs := parser.NewParser(tokens, "test.ags").Parse()
	if len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	if errs := resolver.New().Resolve(stmts); len(errs) > 0 {
		t.Fatalf("resolver errors: %v", errs)
	}
	mod, errs := compiler.Compile(stmts)
	if len(errs) > 0 {
		t.Fatalf("compiler errors: %v", errs)
	}

	entry := mod.Functions[mod.EntryFunction]
	var newMapWord bytecode.Instruction
	found := false
	for _, w := range entry.Code {
		instr := bytecode.Instruction(w)
		if instr.OpCode() == bytecode.OpNewMap {
			newMapWord = instr
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a NEWMAP instruction\n%# v", pretty.Formatter(decodeAll(entry.Code)))
	}
	if newMapWord.C() != 2 {
		t.Fatalf("expected 2 key/value pairs, got C=%d\n%# v", newMapWord.C(), pretty.Formatter(newMapWord))
	}
}
