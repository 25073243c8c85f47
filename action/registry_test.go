package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/decisionmesh/core"
)

func constHandler(v string) Handler {
	return func(context.Context, *core.DecisionContext) (map[string]any, error) {
		return map[string]any{"v": v}, nil
	}
}

// -------------------- Registry --------------------

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("b_action", constHandler("b"))
	r.Register("a_action", constHandler("a"))

	h, ok := r.Handler("a_action")
	require.True(t, ok)
	res, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", res["v"])

	_, ok = r.Handler("missing")
	assert.False(t, ok)
	assert.True(t, r.Has("b_action"))
	assert.Equal(t, []string{"a_action", "b_action"}, r.Actions())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register("x", constHandler("first"))
	r.Register("x", constHandler("second"))

	h, _ := r.Handler("x")
	res, _ := h(context.Background(), nil)
	assert.Equal(t, "second", res["v"])
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_IndependentInstances(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.Register("only_a", constHandler("a"))

	assert.True(t, a.Has("only_a"))
	assert.False(t, b.Has("only_a"))
}

func TestRegistry_Apply(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Apply(
		func(r *Registry) { order = append(order, "one"); r.Register("one", constHandler("1")) },
		nil,
		func(r *Registry) { order = append(order, "two"); r.Register("two", constHandler("2")) },
	)

	assert.Equal(t, []string{"one", "two"}, order)
	assert.Equal(t, []string{"one", "two"}, r.Actions())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(fmt.Sprintf("a%d", i), constHandler("x"))
		}()
		go func() {
			defer wg.Done()
			_ = r.Actions()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

// -------------------- Default registry --------------------

func TestMustRegister_PanicsWithoutDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	SetDefault(nil)
	assert.Panics(t, func() { MustRegister("x", constHandler("x")) })
}

func TestMustRegister_UsesDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	r := NewRegistry()
	SetDefault(r)
	MustRegister("system_ping", constHandler("pong"))

	assert.Same(t, r, Default())
	assert.True(t, r.Has("system_ping"))
}

// -------------------- Errors --------------------

type customErr struct{}

func (customErr) Error() string { return "custom" }

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, KindValidation, ErrorKind(NewError("deploy", "bad version", KindValidation)))
	assert.Equal(t, KindExecution, ErrorKind(fmt.Errorf("wrapped: %w", Errorf("deploy", "exit %d", 1))))
	assert.Equal(t, "customErr", ErrorKind(customErr{}))
	assert.Equal(t, "errorString", ErrorKind(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := NewError("deploy", "bad version", KindValidation)
	assert.Equal(t, "bad version", err.Error())
	assert.Equal(t, "deploy", err.Action)
}
