package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/decisionmesh/internal/util"
	"github.com/hupe1980/decisionmesh/logging"
)

// RunFunc is the body executed inside DecisionContext.Run.
type RunFunc func(ctx context.Context, dc *DecisionContext) error

// DecisionContext carries the state of a single decision from validation to
// its terminal status. It is created per decision and never shared across
// concurrent runs; the mutex only guards against handlers that spawn their own
// goroutines.
//
// Lifecycle:
//  1. NewDecisionContext assigns a trace id and status pending
//  2. Run records the start time, executes the body and captures its error or
//     panic as status failed
//  3. Summary returns an immutable snapshot, valid at any point
type DecisionContext struct {
	*loggerAdapter

	mu        sync.Mutex
	input     DecisionInput
	traceID   string
	startedAt time.Time
	endedAt   time.Time
	status    Status
	errors    []string
	metadata  Metadata
	result    map[string]any
}

// NewDecisionContext creates a pending context for in with a fresh trace id.
func NewDecisionContext(in DecisionInput, logger logging.Logger) *DecisionContext {
	return &DecisionContext{
		loggerAdapter: newLoggerAdapter(logger),
		input:         DecisionInput{Action: in.Action, AgentID: in.AgentID, Payload: util.DeepCopyMap(in.Payload)},
		traceID:       NewID(),
		status:        StatusPending,
	}
}

// TraceID returns the globally unique id of this decision.
func (dc *DecisionContext) TraceID() string { return dc.traceID }

// Input returns a copy of the decision input.
func (dc *DecisionContext) Input() DecisionInput {
	return DecisionInput{Action: dc.input.Action, AgentID: dc.input.AgentID, Payload: util.DeepCopyMap(dc.input.Payload)}
}

// Action returns the requested action name.
func (dc *DecisionContext) Action() string { return dc.input.Action }

// AgentID returns the agent the decision was proposed for.
func (dc *DecisionContext) AgentID() string { return dc.input.AgentID }

// Payload returns a copy of the action payload, never nil.
func (dc *DecisionContext) Payload() map[string]any {
	p := util.DeepCopyMap(dc.input.Payload)
	if p == nil {
		p = map[string]any{}
	}
	return p
}

// Status returns the current status.
func (dc *DecisionContext) Status() Status {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.status
}

// Start records the start time and seeds agent_id and action metadata. Only
// the first call has an effect.
func (dc *DecisionContext) Start() {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !dc.startedAt.IsZero() {
		return
	}

	dc.startedAt = time.Now()
	dc.metadata.Set("agent_id", dc.input.AgentID)
	dc.metadata.Set("action", dc.input.Action)
}

// Run executes fn as the body of the decision. A returned error or a panic
// marks the decision failed with the message appended to its errors; neither
// escapes. A body that returns without settling the status leaves the
// decision executed. The end time is recorded and the outcome logged before
// the summary is returned.
func (dc *DecisionContext) Run(ctx context.Context, fn RunFunc) (summary Summary) {
	dc.Start()

	defer func() {
		if r := recover(); r != nil {
			dc.MarkFailed(fmt.Sprint(r))
			dc.LogError("decision.panic", "trace_id", dc.traceID, "panic", fmt.Sprint(r))
		}
		summary = dc.Finish()
	}()

	if err := fn(ctx, dc); err != nil {
		dc.MarkFailed(err.Error())
		return
	}

	dc.mu.Lock()
	if dc.status == StatusPending {
		dc.status = StatusExecuted
	}
	dc.mu.Unlock()

	return
}

// Finish records the end time (first call only), logs the outcome and returns
// the final summary.
func (dc *DecisionContext) Finish() Summary {
	dc.mu.Lock()
	if dc.startedAt.IsZero() {
		dc.startedAt = time.Now()
	}
	first := dc.endedAt.IsZero()
	if first {
		dc.endedAt = time.Now()
	}
	dc.mu.Unlock()

	s := dc.Summary()
	if first {
		logging.LogDecision(dc.Logger(), s.TraceID, dc.input.Action, string(s.Status), s.LatencyMS, s.Errors)
	}

	return s
}

// LatencyMS returns the elapsed time in milliseconds. Mid-flight it is the
// partial latency so far; after Finish it is final. Zero before Start.
func (dc *DecisionContext) LatencyMS() float64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.latencyLocked()
}

func (dc *DecisionContext) latencyLocked() float64 {
	if dc.startedAt.IsZero() {
		return 0
	}

	end := dc.endedAt
	if end.IsZero() {
		end = time.Now()
	}

	return float64(end.Sub(dc.startedAt).Microseconds()) / 1000.0
}

// AddMetadata stores k=v, keeping first-insertion order.
func (dc *DecisionContext) AddMetadata(k string, v any) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.metadata.Set(k, v)
}

// MetadataValue returns the metadata stored under k.
func (dc *DecisionContext) MetadataValue(k string) (any, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.metadata.Get(k)
}

// AddError appends msg without changing the status.
func (dc *DecisionContext) AddError(msg string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.errors = append(dc.errors, msg)
}

// MarkFailed sets status failed and appends msg.
func (dc *DecisionContext) MarkFailed(msg string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.status = StatusFailed
	dc.errors = append(dc.errors, msg)
}

// SetStatus overrides the status.
func (dc *DecisionContext) SetStatus(s Status) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.status = s
}

// SetResult stores a copy of result and sets the status.
func (dc *DecisionContext) SetResult(result map[string]any, s Status) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.result = util.DeepCopyMap(result)
	dc.status = s
}

// Result returns a copy of the handler result, nil if none was set.
func (dc *DecisionContext) Result() map[string]any {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return util.DeepCopyMap(dc.result)
}

// Summary returns an immutable snapshot of the decision.
func (dc *DecisionContext) Summary() Summary {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	return Summary{
		TraceID:   dc.traceID,
		Status:    dc.status,
		Decision:  dc.input.Map(),
		Result:    util.DeepCopyMap(dc.result),
		LatencyMS: dc.latencyLocked(),
		Errors:    append([]string{}, dc.errors...),
		Metadata:  dc.metadata.Clone(),
	}
}
