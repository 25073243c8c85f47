package testutil

import "github.com/hupe1980/decisionmesh/core"

// DecisionBuilder constructs raw decision maps as submitted by agents.
// Example:
//
//	raw := NewDecision("system_ping").Agent("agent-1").Set("n", 1).Build()
type DecisionBuilder struct {
	action      string
	agentID     string
	payload     map[string]any
	omitPayload bool
	nullPayload bool
}

// NewDecision starts a decision for action with agent "agent-1" and an empty
// payload.
func NewDecision(action string) *DecisionBuilder {
	return &DecisionBuilder{action: action, agentID: "agent-1", payload: map[string]any{}}
}

// Agent sets the proposing agent (chainable).
func (b *DecisionBuilder) Agent(id string) *DecisionBuilder { b.agentID = id; return b }

// Set adds a payload field (chainable).
func (b *DecisionBuilder) Set(k string, v any) *DecisionBuilder { b.payload[k] = v; return b }

// WithoutPayload drops the payload key, producing an invalid decision.
func (b *DecisionBuilder) WithoutPayload() *DecisionBuilder { b.omitPayload = true; return b }

// NullPayload sends an explicit null payload.
func (b *DecisionBuilder) NullPayload() *DecisionBuilder { b.nullPayload = true; return b }

// Build returns the raw decision.
func (b *DecisionBuilder) Build() map[string]any {
	raw := map[string]any{"action": b.action, "agent_id": b.agentID}

	switch {
	case b.omitPayload:
	case b.nullPayload:
		raw["payload"] = nil
	default:
		p := make(map[string]any, len(b.payload))
		for k, v := range b.payload {
			p[k] = v
		}
		raw["payload"] = p
	}

	return raw
}

// Input returns the typed form of the decision.
func (b *DecisionBuilder) Input() core.DecisionInput {
	return core.DecisionInput{Action: b.action, AgentID: b.agentID, Payload: b.Build()["payload"].(map[string]any)}
}
