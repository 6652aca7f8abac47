// Package tools implements the dispatch facade between the external
// reasoning loop and PlanHub's adapters. The operation set is a closed
// table: every reachable operation is declared here with its argument
// schema, so the surface is enumerable and statically checkable.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/planhub/planhub/internal/core"
	"github.com/planhub/planhub/internal/db"
	"github.com/planhub/planhub/internal/telemetry"
)

// Handler executes one validated operation.
type Handler func(ctx context.Context, args Args) (any, error)

// Operation is one entry in the dispatch table.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Args        []Arg  `json:"args,omitempty"`
	ReadOnly    bool   `json:"read_only"`

	run Handler
}

// Request is what the reasoning loop sends: an operation name from the
// fixed set plus named arguments.
type Request struct {
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// AuditRecorder persists one record per dispatched call. Implemented
// by *db.DB; optional.
type AuditRecorder interface {
	InsertToolCall(ctx context.Context, tc *db.ToolCall) error
}

// Dispatcher validates requests against the operation table, routes
// them to the owning component, and folds every outcome into exactly
// one ToolEnvelope. It holds no per-request state and is safe for
// concurrent use.
type Dispatcher struct {
	ops    map[string]*Operation
	order  []string
	logger *slog.Logger
	audit  AuditRecorder
}

func newDispatcher(logger *slog.Logger, audit AuditRecorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ops:    make(map[string]*Operation),
		logger: logger,
		audit:  audit,
	}
}

func (d *Dispatcher) register(op Operation) {
	d.ops[op.Name] = &op
	d.order = append(d.order, op.Name)
}

// Catalog returns the operation table in registration order.
func (d *Dispatcher) Catalog() []Operation {
	out := make([]Operation, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, *d.ops[name])
	}
	return out
}

type ctxKey string

const ctxKeyTraceID ctxKey = "trace_id"

// WithTraceID attaches a transport-assigned trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyTraceID).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// Dispatch runs one request through validate → execute and returns its
// envelope. Validation failures never reach a component. Error detail
// is logged here; the envelope carries only the stable kind and a safe
// message.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) core.ToolEnvelope {
	meta := core.ToolMeta{
		TraceID:    traceIDFrom(ctx),
		ToolCallID: uuid.New().String(),
		Operation:  req.Operation,
	}
	start := time.Now()

	op, ok := d.ops[req.Operation]
	if !ok {
		return d.fail(ctx, meta, start, core.Errorf(core.KindInvalidArgument, "unknown operation %q", req.Operation))
	}

	args, err := validateArgs(op.Args, req.Arguments)
	if err != nil {
		return d.fail(ctx, meta, start, err)
	}

	result, err := op.run(ctx, args)
	if err != nil {
		return d.fail(ctx, meta, start, err)
	}

	d.finish(ctx, meta, start, "ok", nil)
	return core.ToolEnvelope{OK: true, Meta: meta, Result: result}
}

func (d *Dispatcher) fail(ctx context.Context, meta core.ToolMeta, start time.Time, err error) core.ToolEnvelope {
	toolErr := core.MapError(err)
	d.logger.Error("tool call failed",
		"trace_id", meta.TraceID,
		"tool_call_id", meta.ToolCallID,
		"operation", meta.Operation,
		"kind", toolErr.Kind,
		"err", err,
	)
	d.finish(ctx, meta, start, "error", &toolErr.Kind)
	return core.ToolEnvelope{OK: false, Meta: meta, Error: toolErr}
}

func (d *Dispatcher) finish(ctx context.Context, meta core.ToolMeta, start time.Time, status string, errorKind *string) {
	elapsed := time.Since(start)
	telemetry.ObserveToolDuration(meta.Operation, elapsed)
	if errorKind != nil {
		telemetry.IncToolCall(meta.Operation, *errorKind)
	} else {
		telemetry.IncToolCall(meta.Operation, status)
	}

	if status == "ok" {
		d.logger.Info("tool call completed",
			"trace_id", meta.TraceID,
			"tool_call_id", meta.ToolCallID,
			"operation", meta.Operation,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if d.audit == nil {
		return
	}
	record := &db.ToolCall{
		ToolCallID: meta.ToolCallID,
		TraceID:    meta.TraceID,
		Operation:  meta.Operation,
		Status:     status,
		ErrorKind:  errorKind,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.audit.InsertToolCall(ctx, record); err != nil {
		telemetry.IncAuditWriteFailure()
		d.logger.Error("audit record failed", "tool_call_id", meta.ToolCallID, "err", err)
	}
}
