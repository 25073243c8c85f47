// Package decisionmesh wires the decision runtime: an event bus, the action
// registry with the standard actions, the decision pipeline, the SQLite
// decision log and the process state store.
//
// Most applications interact with this package by:
//  1. Creating a Runtime via New(), optionally supplying presence, routing,
//     extra action registrars or a model
//  2. Submitting raw decisions with Process
//  3. Calling Shutdown to drain in-flight decisions and flush the log
package decisionmesh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/decisionmesh/action"
	"github.com/hupe1980/decisionmesh/actions"
	"github.com/hupe1980/decisionmesh/bus"
	"github.com/hupe1980/decisionmesh/core"
	"github.com/hupe1980/decisionmesh/decision"
	"github.com/hupe1980/decisionmesh/internal/storage/sqlite"
	"github.com/hupe1980/decisionmesh/logging"
	"github.com/hupe1980/decisionmesh/model"
	"github.com/hupe1980/decisionmesh/persistence"
	"github.com/hupe1980/decisionmesh/state"
)

// DefaultDBPath is used when neither DBPath nor DB is set.
const DefaultDBPath = "data/lre_core.db"

// ErrNotRunning is reported in the summary of decisions submitted after
// Shutdown.
var ErrNotRunning = errors.New("runtime is not running")

// Options configures the Runtime.
type Options struct {
	// DBPath of the SQLite database; ignored when DB is set.
	DBPath string
	// DB is a caller-owned database. Migrations are applied but the runtime
	// does not close it.
	DB *sql.DB

	// StateBackend defaults to SQLite on the runtime database.
	StateBackend state.Backend

	Presence       core.Presence
	Router         core.Router
	TracerProvider trace.TracerProvider
	Logger         logging.Logger

	// Model enables the model_advise action.
	Model model.Model
	// Registrars are applied after the standard actions and may override them.
	Registrars []action.Registrar
	// DisableStandardActions skips the built-in action set.
	DisableStandardActions bool
	// OnShutdown is invoked by the emergency_shutdown action.
	OnShutdown func(reason string)

	// QueueSize of the persistence writer.
	QueueSize int
	// MaxConcurrentDecisions bounds Process; zero means unlimited.
	MaxConcurrentDecisions int64
	// BusConcurrency bounds parallel subscriber delivery per event.
	BusConcurrency int
}

// Runtime is the assembled decision runtime. It is safe for concurrent use.
type Runtime struct {
	opts     Options
	db       *sql.DB
	ownsDB   bool
	bus      *bus.Bus
	registry *action.Registry
	pipeline *decision.Pipeline
	log      *persistence.Engine
	state    *state.Manager
	sem      *semaphore.Weighted
	logger   logging.Logger

	mu       sync.RWMutex
	running  bool
	inflight sync.WaitGroup
	nextID   uint64
	active   map[uint64]context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New assembles and starts a Runtime.
func New(optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		DBPath: DefaultDBPath,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	ctx := context.Background()

	db, ownsDB := opts.DB, false
	if db == nil {
		var err error
		if db, err = sqlite.Open(ctx, opts.DBPath); err != nil {
			return nil, fmt.Errorf("open decision store: %w", err)
		}
		ownsDB = true
	} else if err := sqlite.Migrate(ctx, db); err != nil {
		return nil, err
	}

	b := bus.New(func(o *bus.Options) {
		o.MaxConcurrency = opts.BusConcurrency
		o.Logger = opts.Logger
	})

	log := persistence.New(db, func(o *persistence.Options) {
		o.QueueSize = opts.QueueSize
		o.Logger = opts.Logger
	})
	if err := log.Subscribe(b); err != nil {
		_ = log.Close()
		if ownsDB {
			_ = db.Close()
		}
		return nil, fmt.Errorf("subscribe decision log: %w", err)
	}

	backend := opts.StateBackend
	if backend == nil {
		backend = state.NewSQLiteBackend(db)
	}
	st := state.NewManager(backend, func(o *state.Options) { o.Logger = opts.Logger })

	registry := action.NewRegistry()
	if !opts.DisableStandardActions {
		registry.Apply(actions.Register(actions.Deps{
			History:    log,
			State:      st,
			Model:      opts.Model,
			OnShutdown: opts.OnShutdown,
			Logger:     opts.Logger,
		}))
	}
	registry.Apply(opts.Registrars...)

	p := decision.New(registry, b, func(o *decision.Options) {
		o.Presence = opts.Presence
		o.Router = opts.Router
		o.Logger = opts.Logger
		o.TracerProvider = opts.TracerProvider
	})

	r := &Runtime{
		opts:     opts,
		db:       db,
		ownsDB:   ownsDB,
		bus:      b,
		registry: registry,
		pipeline: p,
		log:      log,
		state:    st,
		logger:   opts.Logger,
		running:  true,
		active:   make(map[uint64]context.CancelFunc),
	}
	if opts.MaxConcurrentDecisions > 0 {
		r.sem = semaphore.NewWeighted(opts.MaxConcurrentDecisions)
	}

	opts.Logger.Info("runtime.started", "actions", registry.Len(), "db_path", opts.DBPath)

	return r, nil
}

// Process runs raw through the pipeline. It always returns a summary.
func (r *Runtime) Process(ctx context.Context, raw map[string]any) core.Summary {
	id, ctx, ok := r.admit(ctx)
	if !ok {
		return core.Unprocessed(raw, ErrNotRunning.Error())
	}
	defer r.release(id)

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return core.Unprocessed(raw, fmt.Sprintf("runtime busy: %v", err))
		}
		defer r.sem.Release(1)
	}

	return r.pipeline.Execute(ctx, raw)
}

func (r *Runtime) admit(ctx context.Context) (uint64, context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return 0, ctx, false
	}

	r.nextID++
	id := r.nextID

	ctx, cancel := context.WithCancel(ctx)
	r.active[id] = cancel
	r.inflight.Add(1)

	return id, ctx, true
}

func (r *Runtime) release(id uint64) {
	r.mu.Lock()
	if cancel, ok := r.active[id]; ok {
		cancel()
		delete(r.active, id)
	}
	r.mu.Unlock()

	r.inflight.Done()
}

// Running reports whether the runtime still accepts decisions.
func (r *Runtime) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Shutdown stops accepting decisions, waits for in-flight ones and flushes the
// decision log. When ctx expires first the remaining decisions are cancelled.
// Calling Shutdown more than once returns the first result.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()

		r.logger.Info("runtime.shutdown.started")

		drained := make(chan struct{})
		go func() {
			r.inflight.Wait()
			close(drained)
		}()

		var errs []error

		select {
		case <-drained:
		case <-ctx.Done():
			r.mu.Lock()
			r.logger.Warn("runtime.shutdown.cancelling", "inflight", len(r.active))
			for _, cancel := range r.active {
				cancel()
			}
			r.mu.Unlock()
			<-drained
			errs = append(errs, fmt.Errorf("drain in-flight decisions: %w", ctx.Err()))
		}

		if err := r.log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close decision log: %w", err))
		}

		if r.ownsDB {
			if err := r.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close decision store: %w", err))
			}
		}

		r.shutdownErr = errors.Join(errs...)
		r.logger.Info("runtime.shutdown.completed")
	})

	return r.shutdownErr
}

// Flush blocks until every decision recorded so far is written.
func (r *Runtime) Flush(ctx context.Context) error { return r.log.Flush(ctx) }

// Bus returns the lifecycle event bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Registry returns the action registry.
func (r *Runtime) Registry() *action.Registry { return r.registry }

// Pipeline returns the decision pipeline.
func (r *Runtime) Pipeline() *decision.Pipeline { return r.pipeline }

// Log returns the decision log.
func (r *Runtime) Log() *persistence.Engine { return r.log }

// State returns the process state manager.
func (r *Runtime) State() *state.Manager { return r.state }
