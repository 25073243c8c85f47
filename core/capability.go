package core

import "context"

// RouteDirect is the route descriptor used when no router is configured.
const RouteDirect = "direct"

// Presence answers whether an agent is currently online.
type Presence interface {
	QueryPresence(ctx context.Context, agentID string) (bool, error)
}

// Router computes a route descriptor for an agent/action pair.
type Router interface {
	CalculateRoute(ctx context.Context, agentID, action string) (string, error)
}

// AbsentPresence is the explicit "no presence service" variant. Every agent is
// reported online.
type AbsentPresence struct{}

// QueryPresence always reports online.
func (AbsentPresence) QueryPresence(context.Context, string) (bool, error) { return true, nil }

// AbsentRouter is the explicit "no router" variant. Every decision is routed
// RouteDirect.
type AbsentRouter struct{}

// CalculateRoute always returns RouteDirect.
func (AbsentRouter) CalculateRoute(context.Context, string, string) (string, error) {
	return RouteDirect, nil
}

// IsAbsent reports whether c is one of the absent capability variants.
func IsAbsent(c any) bool {
	switch c.(type) {
	case nil, AbsentPresence, *AbsentPresence, AbsentRouter, *AbsentRouter:
		return true
	default:
		return false
	}
}

// PresenceFunc adapts a function to Presence.
type PresenceFunc func(ctx context.Context, agentID string) (bool, error)

// QueryPresence calls f.
func (f PresenceFunc) QueryPresence(ctx context.Context, agentID string) (bool, error) {
	return f(ctx, agentID)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, agentID, action string) (string, error)

// CalculateRoute calls f.
func (f RouterFunc) CalculateRoute(ctx context.Context, agentID, action string) (string, error) {
	return f(ctx, agentID, action)
}
