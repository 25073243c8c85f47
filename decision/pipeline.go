// Package decision implements the pipeline that drives a proposed decision
// through validation, presence, routing and dispatch to a terminal status.
//
// Every call to Execute:
//   - validates the raw input (rejected without a trace id on failure)
//   - publishes decision.received, decision.executing and exactly one
//     terminal topic on the bus
//   - returns a well-formed core.Summary and never panics
//
// Presence and routing are optional. Their absent variants (core.AbsentPresence,
// core.AbsentRouter) degrade to "online" and "direct" with a warning.
package decision

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/logging"
)

const instrumentationName = "github.com/hupe1980/decisionmesh/decision"

// Publisher is the bus surface the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, data any)
}

// Options configures a Pipeline.
type Options struct {
	Presence       core.Presence
	Router         core.Router
	Logger         logging.Logger
	TracerProvider trace.TracerProvider
}

// Pipeline is safe for concurrent use; each Execute owns its own
// DecisionContext.
type Pipeline struct {
	registry *action.Registry
	bus      Publisher
	opts     Options
	tracer   trace.Tracer
}

// New creates a pipeline dispatching through registry and announcing stages
// on bus.
func New(registry *action.Registry, bus Publisher, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Presence: core.AbsentPresence{},
		Router:   core.AbsentRouter{},
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Presence == nil {
		opts.Presence = core.AbsentPresence{}
	}
	if opts.Router == nil {
		opts.Router = core.AbsentRouter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Pipeline{
		registry: registry,
		bus:      bus,
		opts:     opts,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
	}
}

// Registry returns the action registry used for dispatch.
func (p *Pipeline) Registry() *action.Registry { return p.registry }

// ExecuteInput runs an already typed decision.
func (p *Pipeline) ExecuteInput(ctx context.Context, in core.DecisionInput) core.Summary {
	return p.Execute(ctx, in.Map())
}

// Execute drives raw through the pipeline and returns its summary.
func (p *Pipeline) Execute(ctx context.Context, raw map[string]any) (summary core.Summary) {
	ctx, span := p.tracer.Start(ctx, "decision.execute")
	defer span.End()

	in, err := core.ParseInput(raw)
	if err != nil {
		p.opts.Logger.Warn("decision.invalid_input", "error", err.Error())
		span.SetStatus(codes.Error, "invalid input")
		return core.RejectedInput(raw)
	}

	dc := core.NewDecisionContext(in, p.opts.Logger)
	dc.Start()

	span.SetAttributes(
		attribute.String("decision.trace_id", dc.TraceID()),
		attribute.String("decision.action", in.Action),
		attribute.String("decision.agent_id", in.AgentID),
	)

	terminalPublished := false
	defer func() {
		if r := recover(); r != nil {
			dc.MarkFailed(fmt.Sprintf("pipeline panic: %v", r))
			p.opts.Logger.Error("decision.pipeline.panic", "trace_id", dc.TraceID(), "panic", fmt.Sprint(r))
			summary = dc.Finish()
		}
		if !terminalPublished {
			summary.Status = core.StatusFailed
			p.publish(ctx, core.TopicFailed, summary)
		}
	}()

	p.publish(ctx, core.TopicReceived, dc.Summary())

	summary = dc.Run(ctx, p.run)

	p.publish(ctx, core.TerminalTopic(summary.Status), summary)
	terminalPublished = true

	span.SetAttributes(attribute.String("decision.status", string(summary.Status)))
	if summary.Status == core.StatusFailed {
		span.SetStatus(codes.Error, summary.FirstError())
	}

	return summary
}

// run is the body executed inside the decision context.
func (p *Pipeline) run(ctx context.Context, dc *core.DecisionContext) error {
	online, err := p.checkPresence(ctx, dc)
	if err != nil {
		return err
	}
	if !online {
		dc.AddMetadata("reason", "agent_offline")
		dc.SetStatus(core.StatusDeferred)
		p.opts.Logger.Info("decision.deferred", "trace_id", dc.TraceID(), "agent_id", dc.AgentID())
		return nil
	}

	route, err := p.route(ctx, dc)
	if err != nil {
		return err
	}
	dc.AddMetadata("route", route)

	p.publish(ctx, core.TopicExecuting, dc.Summary())

	p.dispatch(ctx, dc)

	return nil
}

func (p *Pipeline) checkPresence(ctx context.Context, dc *core.DecisionContext) (online bool, err error) {
	if core.IsAbsent(p.opts.Presence) {
		p.opts.Logger.Warn("decision.presence.absent", "trace_id", dc.TraceID(), "assume", "online")
		return true, nil
	}

	ctx, span := p.tracer.Start(ctx, "decision.presence")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			online, err = false, fmt.Errorf("presence check panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	online, err = p.opts.Presence.QueryPresence(ctx, dc.AgentID())
	if err != nil {
		return false, fmt.Errorf("presence check failed: %w", err)
	}

	span.SetAttributes(attribute.Bool("agent.online", online))

	return online, nil
}

func (p *Pipeline) route(ctx context.Context, dc *core.DecisionContext) (route string, err error) {
	if core.IsAbsent(p.opts.Router) {
		p.opts.Logger.Warn("decision.router.absent", "trace_id", dc.TraceID(), "route", core.RouteDirect)
		return core.RouteDirect, nil
	}

	ctx, span := p.tracer.Start(ctx, "decision.route")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			route, err = "", fmt.Errorf("routing panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	route, err = p.opts.Router.CalculateRoute(ctx, dc.AgentID(), dc.Action())
	if err != nil {
		return "", fmt.Errorf("routing failed: %w", err)
	}

	span.SetAttributes(attribute.String("decision.route", route))

	return route, nil
}

func (p *Pipeline) publish(ctx context.Context, topic string, s core.Summary) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("decision.publish.panic", "topic", topic, "trace_id", s.TraceID, "panic", fmt.Sprint(r))
		}
	}()

	p.bus.Publish(ctx, topic, s)
}
