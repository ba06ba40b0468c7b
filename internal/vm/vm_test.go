package vm_test

import (
	"strings"
	"testing"

	"agentus/internal/compiler"
	"agentus/internal/host"
	"agentus/internal/lexer"
	"agentus/internal/parser"
	"agentus/internal/resolver"
	"agentus/internal/sink"
	"agentus/internal/value"
	"agentus/internal/vm"
)

// run compiles and executes src end to end with the echo host,
// returning the emitted values as display strings — the shape every
// seed scenario in spec §8 checks against.
func run(t *testing.T, src string) []string {
	t.Helper()

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

	sk := sink.NewCollectingSink()
	machine := vm.New(mod, host.NewEchoHost(), sk)
	if err := machine.Run(); err != nil {
		t.Fatalf("runtime error: %v", err)
	}

	out := make([]string, len(machine.Outputs))
	for i, v := range machine.Outputs {
		out[i] = value.Display(v)
	}
	return out
}

func assertOutputs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d outputs, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output %d: expected %q, got %q (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestSeedLetAndEmit(t *testing.T) {
	out := run(t, `let greeting = "Hello Agentus!"
emit greeting`)
	assertOutputs(t, out, "Hello Agentus!")
}

func TestSeedWhileLoopSum(t *testing.T) {
	out := run(t, `let sum = 0
let i = 1
while i <= 10 {
	sum = sum + i
	i = i + 1
}
emit sum`)
	assertOutputs(t, out, "55")
}

func TestSeedFunctionAbs(t *testing.T) {
	out := run(t, `fn abs(x: num) -> num {
	if x < 0 {
		return -x
	}
	return x
}
emit abs(5)
emit abs(-3)`)
	assertOutputs(t, out, "5", "3")
}

func TestSeedAgentCounters(t *testing.T) {
	out := run(t, `agent Counter {
	memory {
		count: num = 0
	}
	fn inc() -> num {
		self.count = self.count + 1
		return self.count
	}
}
let a = Counter()
let b = Counter()
emit a.inc()
emit a.inc()
emit b.inc()
emit a.inc()
emit b.inc()`)
	assertOutputs(t, out, "1", "2", "1", "3", "2")
}

func TestSeedToolGreet(t *testing.T) {
	out := run(t, `tool greet {
	description { "Greet" }
	param name: str
	returns str
}
emit greet("Alice")`)
	assertOutputs(t, out, "greet(name=Alice)")
}

func TestSeedMailboxFIFO(t *testing.T) {
	out := run(t, `agent Box {
	memory {}
}
let b = Box()
send b, "first"
send b, "second"
emit recv b
emit recv b
emit recv b`)
	assertOutputs(t, out, "first", "second", "none")
}

func TestListIterationAndBuiltins(t *testing.T) {
	out := run(t, `let xs = [1, 2, 3]
let total = 0
for x in xs {
	total = total + x
}
emit total
emit xs.len()`)
	assertOutputs(t, out, "6", "3")
}

func TestMapBuiltins(t *testing.T) {
	out := run(t, `let m = {"a": 1, "b": 2}
emit m.len()
emit m.contains("a")
emit m.contains("z")`)
	assertOutputs(t, out, "2", "true", "false")
}

func TestFieldAssignOutsideAgentIsRuntimeError(t *testing.T) {
	src := `self.x = 1`

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

	machine := vm.New(mod, host.NewEchoHost(), sink.NewCollectingSink())
	err := machine.Run()
	if err == nil {
		t.Fatalf("expected a runtime error assigning self.x outside an agent method")
	}
	if !strings.Contains(err.Error(), "not in an agent context") {
		t.Fatalf("expected a 'not in an agent context' error, got: %v", err)
	}
}
