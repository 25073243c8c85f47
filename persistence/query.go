package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/decisionmesh/core"
)

// DefaultHistoryLimit caps AgentHistory when no limit is given.
const DefaultHistoryLimit = 10

// Record is one row of the decision log.
type Record struct {
	TraceID       string         `json:"trace_id"`
	Timestamp     time.Time      `json:"timestamp"`
	AgentID       string         `json:"agent_id"`
	Action        string         `json:"action"`
	Status        core.Status    `json:"status"`
	InputPayload  map[string]any `json:"input_payload"`
	ResultPayload map[string]any `json:"result_payload"`
	LatencyMS     float64        `json:"latency_ms"`
	ErrorMsg      *string        `json:"error_msg"`
}

// HistoryQuery filters AgentHistory and History. Zero fields are ignored.
type HistoryQuery struct {
	// AgentID and TraceID are only honoured by History.
	AgentID string
	TraceID string
	Limit   int
	Status  core.Status
	Action  string
	// Since keeps records strictly newer than the given time.
	Since time.Time
}

// Statistics aggregates the whole decision log.
type Statistics struct {
	TotalDecisions int64   `json:"total_decisions"`
	UniqueAgents   int64   `json:"unique_agents"`
	ExecutedCount  int64   `json:"executed_count"`
	FailedCount    int64   `json:"failed_count"`
	RejectedCount  int64   `json:"rejected_count"`
	DeferredCount  int64   `json:"deferred_count"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
}

const selectColumns = `trace_id, timestamp, agent_id, action, status, input_payload, result_payload, latency_ms, error_msg`

// AgentHistory returns the decisions of agentID, newest first.
func (e *Engine) AgentHistory(ctx context.Context, agentID string, q HistoryQuery) ([]Record, error) {
	q.AgentID, q.TraceID = agentID, ""
	return e.query(ctx, q, true)
}

// History returns decisions across agents, newest first. Limit defaults to
// DefaultHistoryLimit.
func (e *Engine) History(ctx context.Context, q HistoryQuery) ([]Record, error) {
	return e.query(ctx, q, q.AgentID != "")
}

func (e *Engine) query(ctx context.Context, q HistoryQuery, byAgent bool) ([]Record, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString("SELECT " + selectColumns + " FROM decision_log WHERE 1 = 1")

	if byAgent {
		sb.WriteString(" AND agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.TraceID != "" {
		sb.WriteString(" AND trace_id = ?")
		args = append(args, q.TraceID)
	}
	if q.Status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, string(q.Status))
	}
	if q.Action != "" {
		sb.WriteString(" AND action = ?")
		args = append(args, q.Action)
	}
	if !q.Since.IsZero() {
		sb.WriteString(" AND timestamp > ?")
		args = append(args, toUnixSeconds(q.Since))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	sb.WriteString(" ORDER BY timestamp DESC, rowid DESC LIMIT ?")
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query decision history: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision history: %w", err)
	}

	return out, nil
}

// Lookup returns the record for traceID.
func (e *Engine) Lookup(ctx context.Context, traceID string) (Record, error) {
	row := e.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM decision_log WHERE trace_id = ?", traceID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}

	return r, err
}

// Statistics computes the log-wide aggregates in a single SQL statement.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	const q = `SELECT
    COUNT(*),
    COUNT(DISTINCT agent_id),
    COALESCE(SUM(CASE WHEN status = 'executed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'deferred' THEN 1 ELSE 0 END), 0),
    COALESCE(AVG(latency_ms), 0)
FROM decision_log`

	var s Statistics
	if err := e.db.QueryRowContext(ctx, q).Scan(
		&s.TotalDecisions,
		&s.UniqueAgents,
		&s.ExecutedCount,
		&s.FailedCount,
		&s.RejectedCount,
		&s.DeferredCount,
		&s.AvgLatencyMS,
	); err != nil {
		return Statistics{}, fmt.Errorf("query statistics: %w", err)
	}

	return s, nil
}

// RecentAgents lists the agents with at least one decision newer than since,
// optionally restricted to one action, sorted by id.
func (e *Engine) RecentAgents(ctx context.Context, action string, since time.Time) ([]string, error) {
	q := "SELECT DISTINCT agent_id FROM decision_log WHERE timestamp > ?"
	args := []any{toUnixSeconds(since)}

	if action != "" {
		q += " AND action = ?"
		args = append(args, action)
	}
	q += " ORDER BY agent_id"

	rows, err := e.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent agents: %w", err)
	}
	defer rows.Close()

	agents := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		agents = append(agents, id)
	}

	return agents, rows.Err()
}

// SchemaVersion returns the highest version recorded in schema_version.
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := e.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return int(v.Int64), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		ts      float64
		status  string
		input   sql.NullString
		result  sql.NullString
		latency sql.NullFloat64
		errMsg  sql.NullString
	)

	if err := row.Scan(&r.TraceID, &ts, &r.AgentID, &r.Action, &status, &input, &result, &latency, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan decision record: %w", err)
	}

	r.Timestamp = fromUnixSeconds(ts)
	r.Status = core.Status(status)
	r.LatencyMS = latency.Float64

	if input.Valid && input.String != "" {
		if err := json.Unmarshal([]byte(input.String), &r.InputPayload); err != nil {
			return Record{}, fmt.Errorf("decode input payload of %s: %w", r.TraceID, err)
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &r.ResultPayload); err != nil {
			return Record{}, fmt.Errorf("decode result payload of %s: %w", r.TraceID, err)
		}
	}
	if errMsg.Valid {
		msg := errMsg.String
		r.ErrorMsg = &msg
	}

	return r, nil
}
