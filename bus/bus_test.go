package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/decisionmesh/core"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) HandleEvent(_ context.Context, ev core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, ev.Topic)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func TestBus_GlobMatching(t *testing.T) {
	b := New()
	all := &recorder{}
	failed := &recorder{}
	exact := &recorder{}

	require.NoError(t, b.Subscribe("decision.*", all))
	require.NoError(t, b.Subscribe("decision.?ailed", failed))
	require.NoError(t, b.Subscribe("decision.completed", exact))

	ctx := context.Background()
	b.Publish(ctx, "decision.completed", nil)
	b.Publish(ctx, "decision.failed", nil)
	b.Publish(ctx, "agent.heartbeat", nil)

	assert.Equal(t, []string{"decision.completed", "decision.failed"}, all.got())
	assert.Equal(t, []string{"decision.failed"}, failed.got())
	assert.Equal(t, []string{"decision.completed"}, exact.got())
}

func TestBus_WildcardSpansSlash(t *testing.T) {
	b := New()
	all := &recorder{}
	agents := &recorder{}
	single := &recorder{}

	require.NoError(t, b.Subscribe("*", all))
	require.NoError(t, b.Subscribe("agents/*", agents))
	require.NoError(t, b.Subscribe("agents?a1.status", single))

	ctx := context.Background()
	b.Publish(ctx, "agents/a1.status", nil)
	b.Publish(ctx, "agents/team/a2.status", nil)

	assert.Equal(t, []string{"agents/a1.status", "agents/team/a2.status"}, all.got())
	assert.Equal(t, []string{"agents/a1.status", "agents/team/a2.status"}, agents.got())
	assert.Equal(t, []string{"agents/a1.status"}, single.got())
}

func TestBus_ExactlyOncePerSubscription(t *testing.T) {
	b := New()
	var calls atomic.Int32
	h := Func(func(context.Context, core.Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, b.Subscribe("decision.*", h))
	require.NoError(t, b.Subscribe("decision.*", h))
	require.NoError(t, b.Subscribe("decision.completed", h))

	b.Publish(context.Background(), "decision.completed", nil)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, b.Subscribers("decision.completed"))
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	r := &recorder{}
	require.NoError(t, b.Subscribe("decision.*", r))

	b.Unsubscribe("decision.*", r)
	b.Unsubscribe("never.*", r)
	b.Publish(context.Background(), "decision.completed", nil)

	assert.Empty(t, r.got())
	assert.Zero(t, b.Subscribers("decision.completed"))
}

func TestBus_FailingHandlersDoNotAffectSiblings(t *testing.T) {
	b := New()
	r := &recorder{}

	require.NoError(t, b.Subscribe("decision.*", Func(func(context.Context, core.Event) error {
		return errors.New("handler failed")
	})))
	require.NoError(t, b.Subscribe("decision.*", Func(func(context.Context, core.Event) error {
		panic("handler panicked")
	})))
	require.NoError(t, b.Subscribe("decision.*", r))

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), "decision.failed", nil)
	})
	assert.Equal(t, []string{"decision.failed"}, r.got())
}

func TestBus_PublishWaitsForAllHandlers(t *testing.T) {
	b := New()
	var done atomic.Int32

	for range 5 {
		require.NoError(t, b.Subscribe("*", Func(func(context.Context, core.Event) error {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})))
	}

	start := time.Now()
	b.Publish(context.Background(), "decision.received", nil)

	assert.Equal(t, int32(5), done.Load())
	assert.Less(t, time.Since(start), 45*time.Millisecond, "handlers should run concurrently")
}

func TestBus_MaxConcurrency(t *testing.T) {
	b := New(func(o *Options) { o.MaxConcurrency = 1 })
	var active, peak atomic.Int32

	for range 4 {
		require.NoError(t, b.Subscribe("*", Func(func(context.Context, core.Event) error {
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		})))
	}

	b.Publish(context.Background(), "x", nil)
	assert.Equal(t, int32(1), peak.Load())
}

func TestBus_BadPattern(t *testing.T) {
	b := New()
	err := b.Subscribe("decision.[", &recorder{})
	assert.ErrorIs(t, err, ErrBadPattern)
	assert.Error(t, b.Subscribe("decision.*", nil))
}

func TestBus_EventCarriesData(t *testing.T) {
	b := New()
	got := make(chan core.Event, 1)
	require.NoError(t, b.Subscribe("decision.completed", Func(func(_ context.Context, ev core.Event) error {
		got <- ev
		return nil
	})))

	b.Publish(context.Background(), "decision.completed", core.Summary{TraceID: "t1"})

	ev := <-got
	s, ok := ev.Summary()
	require.True(t, ok)
	assert.Equal(t, "t1", s.TraceID)
}
