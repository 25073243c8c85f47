// Package routing computes route descriptors for decisions from a YAML route
// table. Rules are evaluated in order and the first rule whose glob patterns
// match both the agent id and the action wins.
package routing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/decisionmesh/core"
)

// ErrNoRoute is returned when a matching rule blocks the decision.
var ErrNoRoute = errors.New("routing: no route")

// Table is the parsed route table.
type Table struct {
	TableID string `yaml:"table_id"`
	// Default is used when no rule matches. Empty means core.RouteDirect.
	Default string `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Rule maps an agent/action pattern pair to a route.
type Rule struct {
	ID    string `yaml:"id"`
	Match Match  `yaml:"match"`
	Route string `yaml:"route"`
	// Block refuses matching decisions with ErrNoRoute.
	Block  bool   `yaml:"block"`
	Reason string `yaml:"reason"`
}

// Match holds glob patterns. Empty patterns match everything; "*" also
// matches ids containing "/".
type Match struct {
	Agent  string `yaml:"agent"`
	Action string `yaml:"action"`

	agent, action glob.Glob
}

// Parse decodes a YAML route table and validates its patterns.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}

	for i := range t.Rules {
		r := &t.Rules[i]

		var err error
		if r.Match.agent, err = compile(r.Match.Agent); err != nil {
			return nil, fmt.Errorf("rule %d (%s): bad pattern %q: %w", i, r.ID, r.Match.Agent, err)
		}
		if r.Match.action, err = compile(r.Match.Action); err != nil {
			return nil, fmt.Errorf("rule %d (%s): bad pattern %q: %w", i, r.ID, r.Match.Action, err)
		}

		if !r.Block && r.Route == "" {
			return nil, fmt.Errorf("rule %d (%s): route is required", i, r.ID)
		}
	}

	return &t, nil
}

// Load reads and parses the route table at file.
func Load(file string) (*Table, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return Parse(data)
}

// CalculateRoute implements core.Router.
func (t *Table) CalculateRoute(ctx context.Context, agentID, action string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, r := range t.Rules {
		if !r.Match.matches(agentID, action) {
			continue
		}
		if r.Block {
			reason := r.Reason
			if reason == "" {
				reason = "blocked by rule " + r.ID
			}
			return "", fmt.Errorf("%w for %s/%s: %s", ErrNoRoute, agentID, action, reason)
		}
		return r.Route, nil
	}

	if t.Default != "" {
		return t.Default, nil
	}

	return core.RouteDirect, nil
}

// compile returns nil for the empty pattern, which matches everything.
func compile(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	return glob.Compile(pattern)
}

func (m Match) matches(agentID, action string) bool {
	return matchOne(m.agent, m.Agent, agentID) && matchOne(m.action, m.Action, action)
}

// matchOne uses the compiled glob when Parse built one and compiles pattern
// otherwise, so hand-built tables behave the same.
func matchOne(g glob.Glob, pattern, value string) bool {
	if pattern == "" {
		return true
	}
	if g == nil {
		var err error
		if g, err = glob.Compile(pattern); err != nil {
			return false
		}
	}
	return g.Match(value)
}
