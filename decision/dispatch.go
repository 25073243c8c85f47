package decision

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/logging"
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panicked: %v", e.Value) }

// dispatch looks up and runs the handler, then settles the decision status.
func (p *Pipeline) dispatch(ctx context.Context, dc *core.DecisionContext) {
	ctx, span := p.tracer.Start(ctx, "decision.dispatch")
	defer span.End()

	name := dc.Action()
	span.SetAttributes(attribute.String("decision.action", name))

	h, ok := p.registry.Handler(name)
	if !ok {
		reason := "Unknown action: " + name
		dc.SetResult(map[string]any{
			"status":            string(core.StatusRejected),
			"reason":            reason,
			"available_actions": p.registry.Actions(),
		}, core.StatusRejected)
		dc.AddError(reason)
		span.SetStatus(codes.Error, reason)
		p.opts.Logger.Warn("decision.unknown_action", "trace_id", dc.TraceID(), "action", name)
		return
	}

	start := time.Now()
	result, err := callHandler(ctx, h, dc)
	dur := time.Since(start)

	if err != nil {
		dc.SetResult(map[string]any{
			"status":     string(core.StatusFailed),
			"error":      err.Error(),
			"error_type": action.ErrorKind(err),
		}, core.StatusFailed)
		dc.AddError(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.LogActionCall(p.opts.Logger, dc.TraceID(), name, dur, err)
		return
	}

	dc.SetResult(result, resultStatus(result))
	logging.LogActionCall(p.opts.Logger, dc.TraceID(), name, dur, nil)
}

func callHandler(ctx context.Context, h action.Handler, dc *core.DecisionContext) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r}
		}
	}()

	return h(ctx, dc)
}

// resultStatus honours a terminal status reported by the handler in its
// result's "status" field. Anything else, including "success", means executed.
func resultStatus(result map[string]any) core.Status {
	if s, ok := result["status"].(string); ok {
		if st, ok := core.ParseStatus(s); ok {
			return st
		}
	}
	return core.StatusExecuted
}
