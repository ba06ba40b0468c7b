package host

import (
	"context"
	"strings"
)

// EchoHost is the default host used by the CLI and by every seed
// end-to-end scenario in spec §8: Exec returns the user prompt
// verbatim, ToolCall returns "name(k1=v1, k2=v2, …)" with parameters
// rendered in declaration order (spec §6 "The default host used in
// tests is the echo host").
type EchoHost struct{}

// NewEchoHost creates the echo host.
func NewEchoHost() *EchoHost { return &EchoHost{} }

func (EchoHost) Exec(_ context.Context, req ExecRequest) (string, error) {
	return req.Prompt, nil
}

func (EchoHost) ToolCall(_ context.Context, req ToolCallRequest) (string, error) {
	parts := make([]string, len(req.Params))
	for i, p := range req.Params {
		parts[i] = p.Name + "=" + p.Value
	}
	return req.ToolName + "(" + strings.Join(parts, ", ") + ")", nil
}

// NullHost is the zero-capability host variant: both operations
// always error (spec §6 "A zero-capability host variant returns an
// error from both methods").
type NullHost struct{}

// NewNullHost creates the zero-capability host.
func NewNullHost() *NullHost { return &NullHost{} }

func (NullHost) Exec(context.Context, ExecRequest) (string, error) {
	return "", errNoHost("exec")
}

func (NullHost) ToolCall(context.Context, ToolCallRequest) (string, error) {
	return "", errNoHost("tool_call")
}

type noHostError string

func (e noHostError) Error() string { return "no host capability configured for " + string(e) }

func errNoHost(op string) error { return noHostError(op) }
