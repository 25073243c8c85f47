// Package state stores per-trace process state and serializes concurrent
// read-modify-write updates so that no update is lost.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/decisionmesh/internal/util"
	"github.com/hupe1980/decisionmesh/logging"
)

// ErrEmptyID is returned for operations on an empty trace id.
var ErrEmptyID = errors.New("state: trace id is required")

// UpdateFunc computes the next state from the current one. found is false
// when no state exists yet, in which case current is empty.
type UpdateFunc func(current map[string]any, found bool) (map[string]any, error)

// Backend persists state documents. Update must run fn under exclusive access
// to id for the duration of the read-modify-write.
type Backend interface {
	Load(ctx context.Context, id string) (map[string]any, bool, error)
	Save(ctx context.Context, id string, state map[string]any) error
	Update(ctx context.Context, id string, fn UpdateFunc) (map[string]any, error)
}

// Options configures a Manager.
type Options struct {
	Logger logging.Logger
}

// Manager exposes get / save / update on top of a Backend.
type Manager struct {
	backend Backend
	opts    Options
}

// NewManager creates a Manager for b.
func NewManager(b Backend, optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Manager{backend: b, opts: opts}
}

// GetState returns the state stored for id, or an empty map when none exists.
func (m *Manager) GetState(ctx context.Context, id string) (map[string]any, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	st, found, err := m.backend.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get state for %s: %w", id, err)
	}
	if !found || st == nil {
		return map[string]any{}, nil
	}

	return st, nil
}

// SaveState overwrites the state for id. It is not a read-modify-write; use
// UpdateState when concurrent writers may touch the same id.
func (m *Manager) SaveState(ctx context.Context, id string, state map[string]any) error {
	if id == "" {
		return ErrEmptyID
	}
	if state == nil {
		state = map[string]any{}
	}

	if err := m.backend.Save(ctx, id, state); err != nil {
		return fmt.Errorf("save state for %s: %w", id, err)
	}

	return nil
}

// UpdateState applies patch to the state of id atomically. With merge the
// patch keys are merged into the current state; without it the patch
// replaces the state entirely. The resulting state is returned.
func (m *Manager) UpdateState(ctx context.Context, id string, patch map[string]any, merge bool) (map[string]any, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	next, err := m.backend.Update(ctx, id, func(current map[string]any, found bool) (map[string]any, error) {
		if merge && found {
			return util.MergeMaps(current, patch), nil
		}
		return util.MergeMaps(nil, patch), nil
	})
	if err != nil {
		m.opts.Logger.Error("state.update.failed", "trace_id", id, "error", err.Error())
		return nil, fmt.Errorf("update state for %s: %w", id, err)
	}

	m.opts.Logger.Debug("state.updated", "trace_id", id, "merge", merge)

	return next, nil
}

func encode(state map[string]any) (string, error) {
	if state == nil {
		state = map[string]any{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(b), nil
}

func decode(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
