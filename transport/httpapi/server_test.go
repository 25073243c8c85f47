package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/decisionmesh"
	"github.com/hupe1980/decisionmesh/auth"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/persistence"
	"github.com/hupe1980/decisionmesh/presence"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeProcessor struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (f *fakeProcessor) Process(_ context.Context, raw map[string]any) core.Summary {
	f.mu.Lock()
	f.calls = append(f.calls, raw)
	f.mu.Unlock()

	in, err := core.ParseInput(raw)
	if err != nil {
		return core.RejectedInput(raw)
	}
	return core.Summary{TraceID: "trace-1", Status: core.StatusExecuted, Decision: in.Map(), Result: map[string]any{"message": "pong"}}
}

type fakeLog struct {
	records map[string]persistence.Record
	err     error
	lastQ   persistence.HistoryQuery
}

func (f *fakeLog) AgentHistory(_ context.Context, agentID string, q persistence.HistoryQuery) ([]persistence.Record, error) {
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	var out []persistence.Record
	for _, r := range f.records {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLog) Lookup(_ context.Context, traceID string) (persistence.Record, error) {
	r, ok := f.records[traceID]
	if !ok {
		return persistence.Record{}, persistence.ErrNotFound
	}
	return r, nil
}

func (f *fakeLog) Statistics(context.Context) (persistence.Statistics, error) {
	if f.err != nil {
		return persistence.Statistics{}, f.err
	}
	return persistence.Statistics{TotalDecisions: int64(len(f.records))}, nil
}

type testServer struct {
	router *gin.Engine
	proc   *fakeProcessor
	log    *fakeLog
	tokens *auth.Manager
}

func newServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		proc: &fakeProcessor{},
		log: &fakeLog{records: map[string]persistence.Record{
			"t-1": {TraceID: "t-1", AgentID: "agent-1", Action: "system_ping", Status: core.StatusExecuted},
			"t-2": {TraceID: "t-2", AgentID: "agent-2", Action: "system_ping", Status: core.StatusExecuted},
		}},
		tokens: auth.NewManager(strings.Repeat("s", 32)),
	}
	s.router = NewRouter(s.proc, s.log, s.tokens, func(o *Options) {
		o.AllowedOrigins = []string{"http://localhost:3000"}
	})

	return s
}

func (s *testServer) token(t *testing.T, agentID, role string) string {
	t.Helper()
	tok, err := s.tokens.Issue(agentID, agentID, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestHealthz(t *testing.T) {
	rec := newServer(t).do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/v1/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/v1/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitDecision(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "agent-1", auth.RoleViewer)

	rec := s.do(t, http.MethodPost, "/v1/decisions", tok, map[string]any{
		"action": "system_ping", "agent_id": "agent-1", "payload": map[string]any{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sum core.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, core.StatusExecuted, sum.Status)
	assert.Equal(t, "trace-1", sum.TraceID)
}

func TestSubmitDecision_Forbidden(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/v1/decisions", s.token(t, "agent-1", auth.RoleViewer), map[string]any{
		"action": "emergency_shutdown", "agent_id": "agent-1", "payload": map[string]any{},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/v1/decisions", s.token(t, "agent-1", auth.RoleDeveloper), map[string]any{
		"action": "system_ping", "agent_id": "agent-2", "payload": map[string]any{},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, s.proc.calls)
}

func TestSubmitDecision_AdminActsForAnyAgent(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/v1/decisions", s.token(t, "root", auth.RoleAdmin), map[string]any{
		"action": "emergency_shutdown", "agent_id": "agent-9", "payload": map[string]any{},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, s.proc.calls, 1)
}

func TestSubmitDecision_InvalidInput(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "agent-1", auth.RoleViewer)

	rec := s.do(t, http.MethodPost, "/v1/decisions", tok, map[string]any{"action": "system_ping", "agent_id": "agent-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var sum core.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, core.StatusRejected, sum.Status)

	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+tok)
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, out).Code)
}

func TestGetDecision(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/v1/decisions/t-1", s.token(t, "agent-1", auth.RoleViewer), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var r persistence.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "agent-1", r.AgentID)

	rec = s.do(t, http.MethodGet, "/v1/decisions/t-2", s.token(t, "agent-1", auth.RoleViewer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/decisions/missing", s.token(t, "root", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentHistory(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "agent-1", auth.RoleDeveloper)

	rec := s.do(t, http.MethodGet, "/v1/agents/agent-1/history?limit=5&status=executed&action=system_ping", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Count  int                  `json:"count"`
		Events []persistence.Record `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, persistence.HistoryQuery{Limit: 5, Status: core.StatusExecuted, Action: "system_ping"}, s.log.lastQ)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/agents/agent-2/history", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/agents/agent-1/history?limit=zero", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/agents/agent-1/history?status=pending", tok, nil).Code)
}

func TestStats(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/stats", s.token(t, "agent-1", auth.RoleDeveloper), nil).Code)

	rec := s.do(t, http.MethodGet, "/v1/stats", s.token(t, "root", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st persistence.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, int64(2), st.TotalDecisions)

	s.log.err = errors.New("disk gone")
	rec = s.do(t, http.MethodGet, "/v1/stats", s.token(t, "root", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeError(t, rec).Message)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/decisions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPresence_HeartbeatControlsDeferral(t *testing.T) {
	pres := presence.NewStatic("agent-1")

	rt, err := decisionmesh.New(func(o *decisionmesh.Options) {
		o.DBPath = filepath.Join(t.TempDir(), "decisions.db")
		o.Presence = pres
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	s := &testServer{tokens: auth.NewManager(strings.Repeat("s", 32))}
	s.router = NewRouter(rt, rt.Log(), s.tokens, func(o *Options) { o.Presence = pres })

	tok := s.token(t, "agent-1", auth.RoleDeveloper)
	ping := map[string]any{"action": "system_ping", "agent_id": "agent-1", "payload": map[string]any{}}

	submit := func() core.Summary {
		rec := s.do(t, http.MethodPost, "/v1/decisions", tok, ping)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum core.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
		return sum
	}

	assert.Equal(t, core.StatusDeferred, submit().Status)

	rec := s.do(t, http.MethodPut, "/v1/agents/agent-1/presence", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.StatusExecuted, submit().Status)

	rec = s.do(t, http.MethodDelete, "/v1/agents/agent-1/presence", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sum := submit()
	assert.Equal(t, core.StatusDeferred, sum.Status)
	reason, _ := sum.Metadata.Get("reason")
	assert.Equal(t, "agent_offline", reason)
}

func TestPresence_OwnershipAndDisabled(t *testing.T) {
	pres := presence.NewStatic()

	s := newServer(t)
	s.router = NewRouter(s.proc, s.log, s.tokens, func(o *Options) { o.Presence = pres })

	rec := s.do(t, http.MethodPut, "/v1/agents/agent-2/presence", s.token(t, "agent-1", auth.RoleDeveloper), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/v1/agents/agent-2/presence", s.token(t, "root", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	online, err := pres.QueryPresence(context.Background(), "agent-2")
	require.NoError(t, err)
	assert.False(t, online)

	rec = newServer(t).do(t, http.MethodPut, "/v1/agents/agent-1/presence", s.token(t, "agent-1", auth.RoleDeveloper), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
