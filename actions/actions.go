// Package actions provides the standard action set: health and debug probes,
// mock long-running work, emergency shutdown, decision-log queries, process
// state access and model advice.
package actions

import (
	"context"
	"time"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/logging"
	"github.com/hupe1980/decisionmesh/model"
	"github.com/hupe1980/decisionmesh/persistence"
	"github.com/hupe1980/decisionmesh/state"
)

// Standard action names.
const (
	SystemPing         = "system_ping"
	EchoPayload        = "echo_payload"
	MockAnalyze        = "mock_analyze"
	MockDeploy         = "mock_deploy"
	EmergencyShutdown  = "emergency_shutdown"
	FetchHistory       = "fetch_history"
	GetAgentStatus     = "get_agent_status"
	GetDBStats         = "get_db_stats"
	ProcessStateGet    = "process_state_get"
	ProcessStateUpdate = "process_state_update"
	ModelAdvise        = "model_advise"
)

// Result types of the query actions.
const (
	TypeHistoryResult     = "history_result"
	TypeAgentStatusResult = "agent_status_result"
	TypeDBStatsResult     = "db_stats_result"
	TypeProcessState      = "process_state"
	TypeModelAdvice       = "model_advice"
)

// History is the read side of the decision log used by the query actions.
type History interface {
	History(ctx context.Context, q persistence.HistoryQuery) ([]persistence.Record, error)
	RecentAgents(ctx context.Context, action string, since time.Time) ([]string, error)
	Statistics(ctx context.Context) (persistence.Statistics, error)
}

// Deps are the collaborators of the standard actions. Actions whose
// dependency is nil are not registered.
type Deps struct {
	History    History
	State      *state.Manager
	Model      model.Model
	OnShutdown func(reason string)
	Logger     logging.Logger
	Now        func() time.Time
}

// Register returns a registrar adding the standard actions to a registry.
func Register(deps Deps) action.Registrar {
	if deps.Logger == nil {
		deps.Logger = logging.NoOpLogger{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &stdlib{deps: deps}

	return func(r *action.Registry) {
		r.Register(SystemPing, s.systemPing)
		r.Register(EchoPayload, s.echoPayload)
		r.Register(MockAnalyze, s.mockAnalyze)
		r.Register(MockDeploy, s.mockDeploy)
		r.Register(EmergencyShutdown, s.emergencyShutdown)

		if deps.History != nil {
			r.Register(FetchHistory, s.fetchHistory)
			r.Register(GetAgentStatus, s.getAgentStatus)
			r.Register(GetDBStats, s.getDBStats)
		}

		if deps.State != nil {
			r.Register(ProcessStateGet, s.processStateGet)
			r.Register(ProcessStateUpdate, s.processStateUpdate)
		}

		if deps.Model != nil {
			r.Register(ModelAdvise, s.modelAdvise)
		}
	}
}

type stdlib struct {
	deps Deps
}

func (s *stdlib) unixNow() float64 {
	return float64(s.deps.Now().UnixNano()) / 1e9
}
