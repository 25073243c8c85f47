package actions

import (
	"context"

	"github.com/hupe1980/decisionmesh/core"
)

func (s *stdlib) systemPing(_ context.Context, dc *core.DecisionContext) (map[string]any, error) {
	return map[string]any{
		"status":    "success",
		"message":   "pong",
		"timestamp": s.unixNow(),
		"agent_id":  dc.AgentID(),
	}, nil
}

func (s *stdlib) echoPayload(_ context.Context, dc *core.DecisionContext) (map[string]any, error) {
	return map[string]any{
		"status":  "success",
		"message": "echo",
		"payload": dc.Payload(),
	}, nil
}

func (s *stdlib) mockAnalyze(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	d, err := numberArg(MockAnalyze, dc.Payload(), "duration", 2)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, MockAnalyze, d); err != nil {
		return nil, err
	}

	return map[string]any{
		"status":   "success",
		"message":  "analysis_complete",
		"duration": d,
		"result": map[string]any{
			"confidence": 0.95,
			"findings":   []string{"pattern_a", "pattern_b"},
		},
	}, nil
}

func (s *stdlib) mockDeploy(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	d, err := numberArg(MockDeploy, dc.Payload(), "duration", 1)
	if err != nil {
		return nil, err
	}
	if err := sleep(ctx, MockDeploy, d); err != nil {
		return nil, err
	}

	return map[string]any{
		"status":   "success",
		"message":  "deployment_complete",
		"duration": d,
	}, nil
}

// emergencyShutdown reports a graceful shutdown and fires the shutdown hook.
// The hook runs asynchronously so the decision can still be recorded.
func (s *stdlib) emergencyShutdown(_ context.Context, dc *core.DecisionContext) (map[string]any, error) {
	payload := dc.Payload()

	reason, err := stringArg(EmergencyShutdown, payload, "reason", "Emergency shutdown requested")
	if err != nil {
		return nil, err
	}
	adminID, err := stringArg(EmergencyShutdown, payload, "admin_id", "unknown")
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Warn("emergency.shutdown", "trace_id", dc.TraceID(), "admin_id", adminID, "reason", reason)

	if s.deps.OnShutdown != nil {
		go s.deps.OnShutdown(reason)
	}

	return map[string]any{
		"status":   "success",
		"message":  "shutdown_initiated",
		"reason":   reason,
		"admin_id": adminID,
		"mode":     "graceful",
		"delay":    5,
	}, nil
}
