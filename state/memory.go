package state

import (
	"context"
	"sync"
)

// MemoryBackend is a volatile Backend storing encoded state in a process
// local map. Updates to the same id are serialized by a per-id mutex while
// different ids proceed in parallel. State is kept JSON encoded so values
// behave exactly as they do in the SQLite backend.
type MemoryBackend struct {
	mu     sync.RWMutex
	states map[string]string
	locks  map[string]*sync.Mutex
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states: make(map[string]string),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context, id string) (map[string]any, bool, error) {
	b.mu.RLock()
	data, ok := b.states[id]
	b.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	st, err := decode(data)
	if err != nil {
		return nil, false, err
	}

	return st, true, nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, id string, state map[string]any) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	l := b.lockFor(id)
	l.Lock()
	defer l.Unlock()

	b.mu.Lock()
	b.states[id] = data
	b.mu.Unlock()

	return nil
}

// Update implements Backend.
func (b *MemoryBackend) Update(ctx context.Context, id string, fn UpdateFunc) (map[string]any, error) {
	l := b.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, found, err := b.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = map[string]any{}
	}

	next, err := fn(current, found)
	if err != nil {
		return nil, err
	}

	data, err := encode(next)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.states[id] = data
	b.mu.Unlock()

	return decode(data)
}

// lockFor returns the mutex serializing writers of id, creating it lazily.
func (b *MemoryBackend) lockFor(id string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}

	return l
}
