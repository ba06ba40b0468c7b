// cmd/agentus is the Agentus CLI: exec/compile/version/help
// sub-commands driving the lexer → parser → resolver → compiler → VM
// pipeline.
//
// Flag/subcommand dispatch is a plain switch over os.Args — no CLI
// framework; configuration beyond flags comes from two environment
// variables read directly with os.Getenv.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"agentus/internal/audit"
	"agentus/internal/compiler"
	agerrors "agentus/internal/errors"
	"agentus/internal/host"
	"agentus/internal/lexer"
	"agentus/internal/module"
	"agentus/internal/parser"
	"agentus/internal/resolver"
	"agentus/internal/sink"
	"agentus/internal/vm"
)

// Version and build metadata, overridable via -ldflags at build time.
var (
	Version   = "0.1.0"
	BuildDate = time.Now().Format("2006-01-02")
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's logic pulled out behind an exit-code return so it can
// be driven by testscript.RunMain in main_test.go as well as by main.
func run(args []string) int {
	if len(args) == 0 {
		showUsage()
		return 1
	}

	switch args[0] {
	case "exec":
		return runExec(args[1:])
	case "compile":
		return runCompile(args[1:])
	case "version", "--version", "-v":
		showVersion()
		return 0
	case "help", "--help", "-h":
		showUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command '%s'\n\n", args[0])
		showUsage()
		return 1
	}
}

func showUsage() {
	fmt.Println(`Agentus — a small scripting language for orchestrating LLM agents.

Usage:
  agentus exec [--audit-dsn DSN] [--host-ws URL] <file.ags>
  agentus compile <file.ags>
  agentus version
  agentus help

Flags for exec may also be set via AGENTUS_AUDIT_DSN / AGENTUS_HOST_WS_URL.`)
}

func showVersion() {
	fmt.Printf("agentus %s (build %s, commit %s)\n", Version, BuildDate, GitCommit)
}

// pipeline runs lex → parse → resolve → compile for a source file,
// returning the compiled module or the first stage's collected
// errors; a non-empty error list aborts the pipeline at that stage
// before the next one runs.
func pipeline(path string) (*compiledProgram, []error, agerrors.Stage) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{agerrors.Newf(agerrors.Lexer, "cannot read %s: %v", path, err)}, agerrors.Lexer
	}

	tokens, errs := lexer.NewScanner(string(src), path).ScanTokens()
	if len(errs) > 0 {
		return nil, errs, agerrors.Lexer
	}

	stmts, errs := parser.NewParser(tokens, path).Parse()
	if len(errs) > 0 {
		return nil, errs, agerrors.Parser
	}

	if errs := resolver.New().Resolve(stmts); len(errs) > 0 {
		return nil, errs, agerrors.Semantic
	}

	mod, errs := compiler.Compile(stmts)
	if len(errs) > 0 {
		return nil, errs, agerrors.Codegen
	}

	return &compiledProgram{path: path, mod: mod}, nil, ""
}

type compiledProgram struct {
	path string
	mod  *module.Module
}

func runExec(args []string) int {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	auditDSN := fs.String("audit-dsn", os.Getenv("AGENTUS_AUDIT_DSN"), "optional SQL audit log DSN")
	hostWS := fs.String("host-ws", os.Getenv("AGENTUS_HOST_WS_URL"), "optional websocket host URL")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: agentus exec <file.ags>")
		return 1
	}
	path := fs.Arg(0)

	prog, errs, stage := pipeline(path)
	if len(errs) > 0 {
		reportStageErrors(stage, errs)
		return 1
	}

	h, closeHost, code := buildHost(*hostWS)
	if closeHost != nil {
		defer closeHost()
	}
	if code != 0 {
		return code
	}

	var auditLog *audit.Log
	if *auditDSN != "" {
		al, err := audit.Open(*auditDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
			return 1
		}
		auditLog = al
		defer al.Close()
	}

	sk := sink.NewDefaultSink()
	machine := vm.New(prog.mod, h, sk)
	machine.Audit = auditLog

	if err := machine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		return 1
	}
	return 0
}

func buildHost(wsURL string) (host.Host, func(), int) {
	if wsURL == "" {
		return host.NewEchoHost(), nil, 0
	}
	h, err := host.DialWebSocketHost(wsURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: cannot dial host websocket %s: %v\n", wsURL, err)
		return nil, nil, 1
	}
	return h, func() { h.Close() }, 0
}

func runCompile(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: agentus compile <file.ags>")
		return 1
	}
	path := args[0]

	prog, errs, stage := pipeline(path)
	if len(errs) > 0 {
		reportStageErrors(stage, errs)
		return 1
	}

	out := outputPath(path)
	size := humanize.Bytes(uint64(prog.mod.ByteSize()))
	instrs := humanize.Comma(prog.mod.InstructionCount())
	fmt.Printf("Compiled successfully: %s -> %s (%s, %s instructions)\n", path, out, size, instrs)
	return 0
}

func outputPath(in string) string {
	if len(in) > 4 && in[len(in)-4:] == ".ags" {
		return in[:len(in)-4] + ".agc"
	}
	return in + ".agc"
}

// reportStageErrors prints every collected error for a stage, each
// prefixed the way spec §6 requires ("Lexer error:" / "Parse error:"
// / "Semantic error:" / "Codegen error:" / "Runtime error:").
func reportStageErrors(stage agerrors.Stage, errs []error) {
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "%s error: %s\n", stage, stripStagePrefix(stage, err.Error()))
	}
}

// stripStagePrefix avoids a doubled "Lexer error: Lexer error: …" when
// the underlying error is already an *agerrors.AgentusError that
// rendered its own stage tag.
func stripStagePrefix(stage agerrors.Stage, msg string) string {
	prefix := string(stage) + " error: "
	if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
