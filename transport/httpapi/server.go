// Package httpapi exposes the decision runtime over HTTP with gin.
//
// Routes:
//
//	GET    /healthz
//	POST   /v1/decisions
//	GET    /v1/decisions/:trace_id
//	GET    /v1/agents/:agent_id/history
//	PUT    /v1/agents/:agent_id/presence  (when Options.Presence is set)
//	DELETE /v1/agents/:agent_id/presence  (when Options.Presence is set)
//	GET    /v1/stats
//
// Everything under /v1 requires an HS256 bearer token. Roles gate actions as
// in auth.CheckPermission; non-admin tokens may only act for their own agent.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/decisionmesh/actions"
	"github.com/hupe1980/decisionmesh/auth"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/logging"
	"github.com/hupe1980/decisionmesh/persistence"
)

// Processor runs decisions.
type Processor interface {
	Process(ctx context.Context, raw map[string]any) core.Summary
}

// LogReader is the read side of the decision log.
type LogReader interface {
	AgentHistory(ctx context.Context, agentID string, q persistence.HistoryQuery) ([]persistence.Record, error)
	Lookup(ctx context.Context, traceID string) (persistence.Record, error)
	Statistics(ctx context.Context) (persistence.Statistics, error)
}

// PresenceWriter records agent heartbeats for the presence check.
type PresenceWriter interface {
	Heartbeat(ctx context.Context, agentID string) error
	MarkOffline(ctx context.Context, agentID string) error
}

// Options configures the router.
type Options struct {
	ServiceName    string
	AllowedOrigins []string
	// Presence enables the presence routes when set.
	Presence       PresenceWriter
	TracerProvider trace.TracerProvider
	Logger         logging.Logger
}

type handler struct {
	proc     Processor
	log      LogReader
	presence PresenceWriter
	logger   logging.Logger
}

// NewRouter builds the gin engine.
func NewRouter(proc Processor, log LogReader, tokens *auth.Manager, optFns ...func(o *Options)) *gin.Engine {
	opts := Options{
		ServiceName: "decisionmesh",
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	h := &handler{proc: proc, log: log, presence: opts.Presence, logger: opts.Logger}

	router := gin.New()
	router.Use(gin.Recovery())

	var otelOpts []otelgin.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(opts.TracerProvider))
	}
	router.Use(otelgin.Middleware(opts.ServiceName, otelOpts...))
	router.Use(requestLogger(opts.Logger))

	if len(opts.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(opts.AllowedOrigins))
	}

	router.GET("/healthz", healthCheck)

	v1 := router.Group("/v1")
	v1.Use(requireAuth(tokens, opts.Logger))
	{
		v1.POST("/decisions", h.submitDecision)
		v1.GET("/decisions/:trace_id", h.getDecision)
		v1.GET("/agents/:agent_id/history", h.agentHistory)
		v1.GET("/stats", h.stats)

		if h.presence != nil {
			v1.PUT("/agents/:agent_id/presence", h.heartbeat)
			v1.DELETE("/agents/:agent_id/presence", h.markOffline)
		}
	}

	return router
}

func healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handler) submitDecision(c *gin.Context) {
	claims := claimsFrom(c)

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("decode decision: %w", err))
		return
	}

	// Malformed decisions go to the pipeline, which rejects them.
	if name, ok := raw["action"].(string); ok && !auth.CheckPermission(claims.Role, name) {
		respondError(c, http.StatusForbidden, CodeForbidden, fmt.Errorf("role %s may not propose %s", claims.Role, name))
		return
	}
	if agentID, ok := raw["agent_id"].(string); ok && !mayActFor(claims, agentID) {
		respondError(c, http.StatusForbidden, CodeForbidden, fmt.Errorf("token may not act for agent %s", agentID))
		return
	}

	s := h.proc.Process(c.Request.Context(), raw)

	if s.TraceID == "" && s.Status == core.StatusRejected {
		c.JSON(http.StatusBadRequest, s)
		return
	}

	respondOK(c, s)
}

func (h *handler) getDecision(c *gin.Context) {
	claims := claimsFrom(c)

	rec, err := h.log.Lookup(c.Request.Context(), c.Param("trace_id"))
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && !mayActFor(claims, rec.AgentID)) {
		respondError(c, http.StatusNotFound, CodeNotFound, errors.New("decision not found"))
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	respondOK(c, rec)
}

func (h *handler) agentHistory(c *gin.Context) {
	claims := claimsFrom(c)
	agentID := c.Param("agent_id")

	if !auth.CheckPermission(claims.Role, actions.FetchHistory) || !mayActFor(claims, agentID) {
		respondError(c, http.StatusForbidden, CodeForbidden, fmt.Errorf("token may not read history of %s", agentID))
		return
	}

	q := persistence.HistoryQuery{
		Status: core.Status(c.Query("status")),
		Action: c.Query("action"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		q.Limit = n
	}
	if q.Status != "" && !q.Status.Terminal() {
		respondError(c, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("invalid status %q", q.Status))
		return
	}

	records, err := h.log.AgentHistory(c.Request.Context(), agentID, q)
	if err != nil {
		h.internalError(c, err)
		return
	}

	respondOK(c, gin.H{"agent_id": agentID, "count": len(records), "events": records})
}

func (h *handler) heartbeat(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !mayActFor(claimsFrom(c), agentID) {
		respondError(c, http.StatusForbidden, CodeForbidden, fmt.Errorf("token may not report presence of %s", agentID))
		return
	}

	if err := h.presence.Heartbeat(c.Request.Context(), agentID); err != nil {
		h.internalError(c, err)
		return
	}

	respondOK(c, gin.H{"agent_id": agentID, "online": true})
}

func (h *handler) markOffline(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !mayActFor(claimsFrom(c), agentID) {
		respondError(c, http.StatusForbidden, CodeForbidden, fmt.Errorf("token may not report presence of %s", agentID))
		return
	}

	if err := h.presence.MarkOffline(c.Request.Context(), agentID); err != nil {
		h.internalError(c, err)
		return
	}

	respondOK(c, gin.H{"agent_id": agentID, "online": false})
}

func (h *handler) stats(c *gin.Context) {
	claims := claimsFrom(c)
	if !auth.CheckPermission(claims.Role, actions.GetDBStats) {
		respondError(c, http.StatusForbidden, CodeForbidden, errors.New("statistics require the admin role"))
		return
	}

	s, err := h.log.Statistics(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	respondOK(c, s)
}

func (h *handler) internalError(c *gin.Context, err error) {
	h.logger.Error("http.internal_error", "path", c.FullPath(), "error", err.Error())
	respondError(c, http.StatusInternalServerError, CodeInternal, errors.New("internal error"))
}
