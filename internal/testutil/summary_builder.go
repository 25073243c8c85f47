package testutil

import "github.com/hupe1980/decisionmesh/core"

// SummaryBuilder constructs terminal summaries, typically fed straight to the
// decision log.
type SummaryBuilder struct {
	s core.Summary
}

// NewSummary starts an executed summary for traceID.
func NewSummary(traceID string) *SummaryBuilder {
	return &SummaryBuilder{s: core.Summary{
		TraceID:   traceID,
		Status:    core.StatusExecuted,
		Decision:  NewDecision("system_ping").Build(),
		LatencyMS: 2.5,
	}}
}

// Decision replaces the decision with raw (chainable).
func (b *SummaryBuilder) Decision(raw map[string]any) *SummaryBuilder { b.s.Decision = raw; return b }

// For sets agent and action of the decision (chainable).
func (b *SummaryBuilder) For(agentID, action string) *SummaryBuilder {
	b.s.Decision = NewDecision(action).Agent(agentID).Set("n", 1).Build()
	return b
}

// Status sets the status (chainable).
func (b *SummaryBuilder) Status(s core.Status) *SummaryBuilder { b.s.Status = s; return b }

// Result sets the handler result (chainable).
func (b *SummaryBuilder) Result(r map[string]any) *SummaryBuilder { b.s.Result = r; return b }

// Errors appends error messages (chainable).
func (b *SummaryBuilder) Errors(errs ...string) *SummaryBuilder {
	b.s.Errors = append(b.s.Errors, errs...)
	return b
}

// Latency sets the latency in milliseconds (chainable).
func (b *SummaryBuilder) Latency(ms float64) *SummaryBuilder { b.s.LatencyMS = ms; return b }

// Meta sets a metadata entry (chainable).
func (b *SummaryBuilder) Meta(k string, v any) *SummaryBuilder { b.s.Metadata.Set(k, v); return b }

// Build returns the summary.
func (b *SummaryBuilder) Build() core.Summary { return b.s }
