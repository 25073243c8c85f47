package actions

import (
	"context"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/internal/util"
)

func (s *stdlib) processStateGet(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	id, err := util.RequireString(dc.Payload(), "process_id")
	if err != nil {
		return nil, action.NewError(ProcessStateGet, err.Error(), action.KindValidation)
	}

	st, err := s.deps.State.GetState(ctx, id)
	if err != nil {
		return nil, action.Errorf(ProcessStateGet, "%v", err)
	}

	return map[string]any{
		"type":    TypeProcessState,
		"payload": map[string]any{"process_id": id, "state": st},
	}, nil
}

// processStateUpdate merges payload.patch into the process state unless
// payload.merge is false, in which case the state is replaced.
func (s *stdlib) processStateUpdate(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	payload := dc.Payload()

	id, err := util.RequireString(payload, "process_id")
	if err != nil {
		return nil, action.NewError(ProcessStateUpdate, err.Error(), action.KindValidation)
	}
	patch, err := util.OptionalObject(payload, "patch")
	if err != nil {
		return nil, action.NewError(ProcessStateUpdate, err.Error(), action.KindValidation)
	}

	merge := true
	if v, ok := payload["merge"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return nil, action.NewError(ProcessStateUpdate, "merge must be a boolean", action.KindValidation)
		}
		merge = b
	}

	st, err := s.deps.State.UpdateState(ctx, id, patch, merge)
	if err != nil {
		return nil, action.Errorf(ProcessStateUpdate, "%v", err)
	}

	s.deps.Logger.Debug("process.state.updated", "trace_id", dc.TraceID(), "process_id", id, "merge", merge)

	return map[string]any{
		"type":    TypeProcessState,
		"payload": map[string]any{"process_id": id, "state": st},
	}, nil
}
