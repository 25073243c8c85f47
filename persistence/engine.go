// Package persistence keeps the append-only decision log.
//
// The Engine subscribes to the decision lifecycle topics on a bus and hands
// every terminal summary to a single writer goroutine, so the publisher never
// waits on disk I/O. Write failures are logged and swallowed: losing an audit
// row must not fail the decision that produced it.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/decisionmesh/bus"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/internal/storage/sqlite"
	"github.com/hupe1980/decisionmesh/logging"
)

// ErrNotFound is returned by Lookup for unknown trace ids.
var ErrNotFound = errors.New("persistence: decision not found")

// ErrClosed is returned when enqueueing into a closed engine.
var ErrClosed = errors.New("persistence: engine closed")

// Options configures an Engine.
type Options struct {
	// QueueSize is the capacity of the write queue. Publishers block when it
	// is full.
	QueueSize int
	// WriteTimeout bounds a single insert.
	WriteTimeout time.Duration
	Logger       logging.Logger
	// Now supplies record timestamps.
	Now func() time.Time
}

// DefaultOptions mirrors the values used when no overrides are given.
var DefaultOptions = Options{
	QueueSize:    256,
	WriteTimeout: 5 * time.Second,
}

type writeOp struct {
	summary core.Summary
	flushed chan struct{}
}

// Engine owns the decision_log insert path.
type Engine struct {
	db   *sql.DB
	opts Options

	mu     sync.RWMutex
	closed bool
	queue  chan writeOp
	done   chan struct{}
}

// New starts an engine writing to db. The schema must already exist; see
// internal/storage/sqlite.Open.
func New(db *sql.DB, optFns ...func(o *Options)) *Engine {
	opts := DefaultOptions
	opts.Logger = logging.NoOpLogger{}
	opts.Now = time.Now

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions.QueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions.WriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		db:    db,
		opts:  opts,
		queue: make(chan writeOp, opts.QueueSize),
		done:  make(chan struct{}),
	}

	go e.writer()

	return e
}

// Subscribe registers the engine for every decision lifecycle topic on b.
func (e *Engine) Subscribe(b *bus.Bus) error {
	return b.Subscribe(core.TopicAllDecisions, e)
}

// HandleEvent implements bus.Handler. Only terminal topics are persisted.
// A full queue blocks the publisher until space frees up or ctx is done.
func (e *Engine) HandleEvent(ctx context.Context, ev core.Event) error {
	if !core.IsTerminalTopic(ev.Topic) {
		return nil
	}

	s, ok := ev.Summary()
	if !ok {
		return fmt.Errorf("persistence: event %s on %s carries no decision summary", ev.ID, ev.Topic)
	}

	return e.enqueue(ctx, writeOp{summary: s})
}

// Record writes s synchronously. It is the direct-call counterpart of the
// bus subscription; failures are logged, not returned.
func (e *Engine) Record(ctx context.Context, s core.Summary) {
	if err := e.insert(ctx, s); err != nil {
		e.logWriteError(s, err)
	}
}

// Flush blocks until every record queued before the call has been written.
func (e *Engine) Flush(ctx context.Context) error {
	op := writeOp{flushed: make(chan struct{})}
	if err := e.enqueue(ctx, op); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}

	select {
	case <-op.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued operations.
func (e *Engine) Pending() int { return len(e.queue) }

// Close stops accepting records, drains the queue and waits for the writer to
// exit. It does not close the database.
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	<-e.done

	return nil
}

func (e *Engine) enqueue(ctx context.Context, op writeOp) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}

	// Cancelled decisions still get their record when there is room.
	select {
	case e.queue <- op:
		return nil
	default:
	}

	select {
	case e.queue <- op:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue decision record: %w", ctx.Err())
	}
}

func (e *Engine) writer() {
	defer close(e.done)

	for op := range e.queue {
		if op.flushed != nil {
			close(op.flushed)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.opts.WriteTimeout)
		if err := e.insert(ctx, op.summary); err != nil {
			e.logWriteError(op.summary, err)
		}
		cancel()
	}
}

const insertSQL = `INSERT INTO decision_log
    (trace_id, timestamp, agent_id, action, status, input_payload, result_payload, latency_ms, error_msg)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (e *Engine) insert(ctx context.Context, s core.Summary) error {
	if s.TraceID == "" {
		return errors.New("summary has no trace id")
	}
	if !s.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", s.Status)
	}

	in := s.Input()

	input, err := json.Marshal(s.Decision)
	if err != nil {
		return fmt.Errorf("encode input payload: %w", err)
	}

	var result sql.NullString
	if s.Result != nil {
		b, err := json.Marshal(s.Result)
		if err != nil {
			return fmt.Errorf("encode result payload: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}

	var errMsg sql.NullString
	if len(s.Errors) > 0 {
		errMsg = sql.NullString{String: strings.Join(s.Errors, ", "), Valid: true}
	}

	if _, err := e.db.ExecContext(ctx, insertSQL,
		s.TraceID,
		toUnixSeconds(e.opts.Now()),
		in.AgentID,
		in.Action,
		string(s.Status),
		string(input),
		result,
		s.LatencyMS,
		errMsg,
	); err != nil {
		return err
	}

	e.opts.Logger.Debug("persistence.recorded", "trace_id", s.TraceID, "status", string(s.Status))

	return nil
}

func (e *Engine) logWriteError(s core.Summary, err error) {
	if sqlite.IsConstraintError(err) {
		e.opts.Logger.Error("persistence.duplicate_or_invalid", "trace_id", s.TraceID, "status", string(s.Status), "error", err.Error())
		return
	}
	e.opts.Logger.Error("persistence.write_failed", "trace_id", s.TraceID, "error", err.Error())
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(v float64) time.Time {
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
