package core

import "github.com/hupe1980/decisionmesh/internal/util"

// Summary is the immutable snapshot of a decision. It is returned by the
// pipeline and carried as the data of lifecycle events. Every container is a
// deep copy taken at snapshot time.
type Summary struct {
	TraceID   string         `json:"trace_id"`
	Status    Status         `json:"status"`
	Decision  map[string]any `json:"decision"`
	Result    map[string]any `json:"result"`
	LatencyMS float64        `json:"latency_ms"`
	Errors    []string       `json:"errors"`
	Metadata  Metadata       `json:"metadata"`
}

// Input re-derives the typed decision from the snapshot. Fields of the wrong
// type are left empty.
func (s Summary) Input() DecisionInput {
	in := DecisionInput{}
	in.Action, _ = s.Decision["action"].(string)
	in.AgentID, _ = s.Decision["agent_id"].(string)
	in.Payload, _ = s.Decision["payload"].(map[string]any)
	return in
}

// FirstError returns the first recorded error or "".
func (s Summary) FirstError() string {
	if len(s.Errors) == 0 {
		return ""
	}
	return s.Errors[0]
}

// RejectedInput builds the summary returned for a decision that failed
// validation. No trace id is assigned since no context exists.
func RejectedInput(raw map[string]any) Summary {
	decision := util.DeepCopyMap(raw)
	if decision == nil {
		decision = map[string]any{}
	}

	return Summary{
		Status:   StatusRejected,
		Decision: decision,
		Errors:   []string{"Invalid input format"},
	}
}

// Unprocessed builds the failed summary returned when a decision could not be
// admitted at all, for example after shutdown.
func Unprocessed(raw map[string]any, reason string) Summary {
	s := RejectedInput(raw)
	s.Status = StatusFailed
	s.Errors = []string{reason}
	return s
}
