// Package host defines the external boundary the VM calls through for
// every Exec and TCall opcode: a two-method interface the VM consumes
// and never implements itself (spec §6 "Host interface").
//
// The donor VM wires a dozen concrete library modules (database,
// network, siem, cloud, ...) directly into internal/vmregister.
// Agentus collapses all host-side capability behind this one
// interface instead — the VM talks to "the host", never to a model or
// tool client directly (spec §1 "contract-only", §6).
package host

import "context"

// ExecRequest carries everything an Exec opcode threads to the host:
// the stringified prompt plus the owning agent's optional model and
// system prompt (spec §4.1 Exec, §4.4 Exec).
type ExecRequest struct {
	Prompt string

	HasModel bool
	Model    string

	HasSystemPrompt bool
	SystemPrompt    string
}

// ParamEntry is one named, stringified tool-call argument (spec §4.4
// TCall: "zip the live arguments with the descriptor's parameter
// names").
type ParamEntry struct {
	Name  string
	Value string
}

// ToolCallRequest carries a TCall opcode's resolved tool name and its
// named argument list to the host (spec §6 tool_call contract).
type ToolCallRequest struct {
	ToolName string
	Params   []ParamEntry
}

// Host is the two-operation boundary the VM calls through for every
// Exec and TCall opcode. Implementations may call out to a real model
// or tool server; a Host error aborts execution with an "exec error:"
// or "tool call error:" runtime error (spec §6, §7).
type Host interface {
	Exec(ctx context.Context, req ExecRequest) (string, error)
	ToolCall(ctx context.Context, req ToolCallRequest) (string, error)
}
