package actions

import (
	"context"
	"time"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/internal/util"
	"github.com/hupe1980/decisionmesh/logging"
	"github.com/hupe1980/decisionmesh/model"
)

const defaultAdviceInstructions = "You advise an operator on whether an agent action should proceed. Answer briefly."

// modelAdvise renders payload.prompt as a template over the payload and the
// decision identity, then asks the configured model.
func (s *stdlib) modelAdvise(ctx context.Context, dc *core.DecisionContext) (map[string]any, error) {
	payload := dc.Payload()

	prompt, err := util.RequireString(payload, "prompt")
	if err != nil {
		return nil, action.NewError(ModelAdvise, err.Error(), action.KindValidation)
	}
	instructions, err := stringArg(ModelAdvise, payload, "instructions", defaultAdviceInstructions)
	if err != nil {
		return nil, err
	}

	data := util.MergeMaps(payload, map[string]any{
		"agent_id": dc.AgentID(),
		"trace_id": dc.TraceID(),
	})

	rendered, err := util.RenderTemplate(prompt, data)
	if err != nil {
		return nil, action.NewError(ModelAdvise, "render prompt: "+err.Error(), action.KindValidation)
	}

	info := s.deps.Model.Info()
	start := time.Now()
	resp, err := s.deps.Model.Complete(ctx, model.Request{Instructions: instructions, Prompt: rendered})
	dur := time.Since(start)
	logging.LogModelCall(s.deps.Logger, info.Name, info.Provider, dur, err)
	if err != nil {
		return nil, action.Errorf(ModelAdvise, "model call: %v", err)
	}

	out := map[string]any{
		"status":  "success",
		"type":    TypeModelAdvice,
		"advice":  resp.Text,
		"model":   info.Name,
		"prompt":  rendered,
		"finish":  resp.FinishReason,
		"latency": dur.Seconds(),
	}
	if resp.Usage != nil {
		out["total_tokens"] = resp.Usage.TotalTokens
	}

	return out, nil
}
