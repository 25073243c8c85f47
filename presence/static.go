package presence

import (
	"context"
	"sync"
)

// Static is an in-process presence table. Agents are online unless marked
// offline.
type Static struct {
	mu      sync.RWMutex
	offline map[string]bool
}

// NewStatic creates a table with the given agents offline.
func NewStatic(offline ...string) *Static {
	s := &Static{offline: make(map[string]bool, len(offline))}
	for _, a := range offline {
		s.offline[a] = true
	}
	return s
}

// SetOnline updates the presence of agentID.
func (s *Static) SetOnline(agentID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		delete(s.offline, agentID)
		return
	}
	s.offline[agentID] = true
}

// QueryPresence implements core.Presence.
func (s *Static) QueryPresence(_ context.Context, agentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.offline[agentID], nil
}

// Heartbeat marks agentID online.
func (s *Static) Heartbeat(_ context.Context, agentID string) error {
	s.SetOnline(agentID, true)
	return nil
}

// MarkOffline marks agentID offline.
func (s *Static) MarkOffline(_ context.Context, agentID string) error {
	s.SetOnline(agentID, false)
	return nil
}
