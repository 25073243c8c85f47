package actions

import (
	"context"
	"time"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/persistence"
)

const (
	defaultFetchLimit   = 100
	defaultSinceSeconds = 30
)

func (s *stdlib) fetchHistory(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	payload := dc.Payload()

	traceID, err := stringArg(FetchHistory, payload, "trace_id", "")
	if err != nil {
		return nil, err
	}
	agentID, err := stringArg(FetchHistory, payload, "agent_id", "")
	if err != nil {
		return nil, err
	}
	actionName, err := stringArg(FetchHistory, payload, "type", "")
	if err != nil {
		return nil, err
	}
	limit, err := numberArg(FetchHistory, payload, "limit", defaultFetchLimit)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, action.NewError(FetchHistory, "limit must be positive", action.KindValidation)
	}

	records, err := s.deps.History.History(ctx, persistence.HistoryQuery{
		TraceID: traceID,
		AgentID: agentID,
		Action:  actionName,
		Limit:   int(limit),
	})
	if err != nil {
		return nil, action.Errorf(FetchHistory, "fetch history: %v", err)
	}

	return map[string]any{
		"type": TypeHistoryResult,
		"payload": map[string]any{
			"events": records,
			"count":  len(records),
			"filters": map[string]any{
				"trace_id": nullable(traceID),
				"agent_id": nullable(agentID),
				"type":     nullable(actionName),
				"limit":    int(limit),
			},
		},
	}, nil
}

func (s *stdlib) getAgentStatus(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	since, err := numberArg(GetAgentStatus, dc.Payload(), "since_seconds", defaultSinceSeconds)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	agents, err := s.deps.History.RecentAgents(ctx, "", now.Add(-time.Duration(since*float64(time.Second))))
	if err != nil {
		return nil, action.Errorf(GetAgentStatus, "recent agents: %v", err)
	}

	return map[string]any{
		"type": TypeAgentStatusResult,
		"payload": map[string]any{
			"agents":    agents,
			"timestamp": s.unixNow(),
		},
	}, nil
}

func (s *stdlib) getDBStats(ctx context.Context, _ *core.DecisionContext) (map[string]any, error) {
	stats, err := s.deps.History.Statistics(ctx)
	if err != nil {
		return nil, action.Errorf(GetDBStats, "statistics: %v", err)
	}

	return map[string]any{
		"type":    TypeDBStatsResult,
		"payload": stats,
	}, nil
}
