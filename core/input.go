package core

import (
	"errors"
	"fmt"

	"github.com/hupe1980/decisionmesh/internal/util"
)

// ErrInvalidInput is returned by ParseInput when the raw decision does not
// have the expected shape.
var ErrInvalidInput = errors.New("invalid input format")

// DecisionInput is a proposed action on behalf of an agent. It is treated as
// immutable once a pipeline run starts.
type DecisionInput struct {
	Action  string         `json:"action"`
	AgentID string         `json:"agent_id"`
	Payload map[string]any `json:"payload"`
}

// ParseInput validates a raw decision. The keys action, agent_id and payload
// must all be present; action and agent_id must be strings and payload an
// object or null.
func ParseInput(raw map[string]any) (DecisionInput, error) {
	if raw == nil {
		return DecisionInput{}, ErrInvalidInput
	}

	action, err := util.RequireString(raw, "action")
	if err != nil {
		return DecisionInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	agentID, err := util.RequireString(raw, "agent_id")
	if err != nil {
		return DecisionInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	payload, err := util.OptionalObject(raw, "payload")
	if err != nil {
		return DecisionInput{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return DecisionInput{Action: action, AgentID: agentID, Payload: util.DeepCopyMap(payload)}, nil
}

// Map returns the wire form of the input.
func (in DecisionInput) Map() map[string]any {
	payload := util.DeepCopyMap(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	return map[string]any{
		"action":   in.Action,
		"agent_id": in.AgentID,
		"payload":  payload,
	}
}
