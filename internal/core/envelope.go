// Package core defines the shared tool-call contract for PlanHub:
// the result envelope, the closed error-kind set, and error mapping.
package core

// ToolEnvelope is the standard response wrapper for all tool calls.
// Used by both HTTP and MCP transports. Every dispatched request
// produces exactly one envelope.
type ToolEnvelope struct {
	OK     bool       `json:"ok"`
	Meta   ToolMeta   `json:"meta"`
	Result any        `json:"result,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

// ToolMeta contains trace metadata for a tool call.
type ToolMeta struct {
	TraceID    string `json:"trace_id"`
	ToolCallID string `json:"tool_call_id"`
	Operation  string `json:"operation"`
}

// ToolError is a tool-level error (distinct from transport errors).
// Kind is one of the stable kinds declared in errors.go; Message is
// safe to surface to the caller.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
