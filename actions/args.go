package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/decisionmesh/action"
)

// numberArg reads a numeric payload field, falling back to def when absent.
func numberArg(name string, payload map[string]any, field string, def float64) (float64, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return def, nil
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, action.NewError(name, fmt.Sprintf("%s must be a number", field), action.KindValidation)
		}
		return f, nil
	default:
		return 0, action.NewError(name, fmt.Sprintf("%s must be a number, got %T", field, v), action.KindValidation)
	}
}

// stringArg reads an optional string payload field.
func stringArg(name string, payload map[string]any, field, def string) (string, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return def, nil
	}

	s, ok := v.(string)
	if !ok {
		return "", action.NewError(name, fmt.Sprintf("%s must be a string, got %T", field, v), action.KindValidation)
	}

	return s, nil
}

// nullable returns nil for the empty string so absent filters marshal as null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sleep waits for d seconds or until ctx is done.
func sleep(ctx context.Context, name string, seconds float64) error {
	if seconds < 0 {
		return action.NewError(name, "duration must not be negative", action.KindValidation)
	}

	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return action.NewError(name, fmt.Sprintf("interrupted: %v", ctx.Err()), action.KindTimeout)
	}
}
